package flow

import "agrivoice-platform/internal/session"

// Decision is the engine's answer to "the caller is in state X and pressed
// Y". It carries only what the webhook adapter needs to render a response;
// no provider-specific fields belong here.

type Decision struct {
	NextState session.IVRState `json:"next_state"`

	Action Action `json:"action"`

	// PromptKey names the voice prompt to speak or play next.
	PromptKey string `json:"prompt_key,omitempty"`

	// Language is set when the decision itself selected one (a language
	// menu digit).
	Language string `json:"language,omitempty"`

	// Terminate is set when the call should be finalized after rendering,
	// together with the reason.
	Terminate         bool                      `json:"terminate,omitempty"`
	TerminationReason session.TerminationReason `json:"termination_reason,omitempty"`

	// Reason is for internal logs only.
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	// ActionGather plays the prompt and collects DTMF digits.
	ActionGather Action = "gather"
	// ActionRecord plays the prompt and records the caller's voice.
	ActionRecord Action = "record"
	// ActionReplay re-plays the last AI answer, then gathers again.
	ActionReplay Action = "replay"
	// ActionTransfer dials the caller's assigned human agent.
	ActionTransfer Action = "transfer"
	// ActionHangup speaks the prompt and ends the call.
	ActionHangup Action = "hangup"
)

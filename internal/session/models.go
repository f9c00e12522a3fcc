package session

import (
	"fmt"
	"time"
)

// IVRState is the closed set of states a call can be in.
//
// Unknown values must be rejected at the HTTP boundary (ParseIVRState);
// the tracker assumes every state it sees is one of these.
type IVRState string

const (
	StateCallInitiated       IVRState = "call-initiated"
	StateWelcome             IVRState = "welcome"
	StateLanguageSelection   IVRState = "language-selection"
	StateRecordingPrompt     IVRState = "recording-prompt"
	StateRecordingInProgress IVRState = "recording-in-progress"
	StateAIProcessing        IVRState = "ai-processing"
	StateAIResponse          IVRState = "ai-response"
	StatePostAIMenu          IVRState = "post-ai-menu"
	StateFollowUpRecording   IVRState = "follow-up-recording"
	StateAgentTransfer       IVRState = "human-agent-transfer"
	StateAgentConnected      IVRState = "human-agent-connected"
	StateCallEnded           IVRState = "call-ended"
	StateError               IVRState = "error-state"
	StateTimeout             IVRState = "timeout"
	StateUserHangup          IVRState = "user-hangup"
)

var validStates = map[IVRState]struct{}{
	StateCallInitiated:       {},
	StateWelcome:             {},
	StateLanguageSelection:   {},
	StateRecordingPrompt:     {},
	StateRecordingInProgress: {},
	StateAIProcessing:        {},
	StateAIResponse:          {},
	StatePostAIMenu:          {},
	StateFollowUpRecording:   {},
	StateAgentTransfer:       {},
	StateAgentConnected:      {},
	StateCallEnded:           {},
	StateError:               {},
	StateTimeout:             {},
	StateUserHangup:          {},
}

func ParseIVRState(s string) (IVRState, error) {
	st := IVRState(s)
	if _, ok := validStates[st]; !ok {
		return "", fmt.Errorf("session: unknown ivr state %q", s)
	}
	return st, nil
}

// TerminationReason is the closed set of reasons a call record can be closed with.
type TerminationReason string

const (
	ReasonUserHangup        TerminationReason = "user-hangup"
	ReasonTimeout           TerminationReason = "timeout"
	ReasonSystemError       TerminationReason = "system-error"
	ReasonCompleted         TerminationReason = "completed-successfully"
	ReasonTransferred       TerminationReason = "transferred-to-agent"
	ReasonNetworkIssue      TerminationReason = "network-issue"
	ReasonInvalidInput      TerminationReason = "invalid-input"
	ReasonMaxRetriesReached TerminationReason = "max-retries-exceeded"
)

var validReasons = map[TerminationReason]struct{}{
	ReasonUserHangup:        {},
	ReasonTimeout:           {},
	ReasonSystemError:       {},
	ReasonCompleted:         {},
	ReasonTransferred:       {},
	ReasonNetworkIssue:      {},
	ReasonInvalidInput:      {},
	ReasonMaxRetriesReached: {},
}

func ParseTerminationReason(s string) (TerminationReason, error) {
	r := TerminationReason(s)
	if _, ok := validReasons[r]; !ok {
		return "", fmt.Errorf("session: unknown termination reason %q", s)
	}
	return r, nil
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// CallSession is the live, in-memory view of one ongoing call.
// It exists only between StartSession and FinalizeSession; the durable
// EngagementRecord mirrors everything worth keeping.
type CallSession struct {
	SessionID   string `json:"session_id"`
	PhoneNumber string `json:"phone_number"`

	// CallID is the telephony provider's identifier for the call leg.
	// Status callbacks carry only this, not the session id.
	CallID string `json:"call_id,omitempty"`

	StartTime      time.Time `json:"start_time"`
	CurrentState   IVRState  `json:"current_state"`
	StateStartTime time.Time `json:"state_start_time"`

	// Metadata carries caller-supplied context from the inbound webhook,
	// e.g. the dialed number or provider region. Never read by the core.
	Metadata map[string]string `json:"metadata,omitempty"`

	// SelectedLanguage is set at most once per digit press; a later press
	// with a different value wins.
	SelectedLanguage string `json:"selected_language,omitempty"`
}

// StateTransition is one immutable entry in the per-call transition log.
type StateTransition struct {
	FromState IVRState  `json:"from_state"`
	ToState   IVRState  `json:"to_state"`
	Timestamp time.Time `json:"timestamp"`

	// DurationMillis is the time spent in FromState.
	DurationMillis int64 `json:"duration_ms"`

	UserInput string `json:"user_input,omitempty"`
	Error     string `json:"error,omitempty"`
}

// AIInteraction is one immutable user-query/AI-response exchange.
type AIInteraction struct {
	Timestamp time.Time `json:"timestamp"`

	UserRecordingSeconds float64 `json:"user_recording_seconds"`
	UserQuery            string  `json:"user_query"`
	AIResponse           string  `json:"ai_response"`

	AIProcessingMillis  int64 `json:"ai_processing_ms"`
	TTSGenerationMillis int64 `json:"tts_generation_ms"`

	Language   string   `json:"language"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ErrorRecord is one immutable entry in the per-call error log.
type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	State     IVRState  `json:"state"`
	Severity  Severity  `json:"severity"`
}

// EngagementRecord is the durable, one-per-call record.
//
// Invariants:
// - FinalState and TerminationReason are write-once at finalization.
// - Transition/interaction/error logs and input collections are append-only.
// - Counters accumulate monotonically via storage-level increments.
// - EngagementScore is recomputed before any persistence that could change it.
type EngagementRecord struct {
	SessionID   string `json:"session_id" db:"session_id"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`
	CallID      string `json:"call_id,omitempty" db:"call_id"`

	CallStartTime time.Time  `json:"call_start_time" db:"call_start_time"`
	CallEndTime   *time.Time `json:"call_end_time,omitempty" db:"call_end_time"`

	// TotalDurationSeconds stays 0 until finalization.
	TotalDurationSeconds int `json:"total_duration_seconds" db:"total_duration_seconds"`

	SelectedLanguage      string     `json:"selected_language,omitempty" db:"selected_language"`
	LanguageSelectionTime *time.Time `json:"language_selection_time,omitempty" db:"language_selection_time"`

	CurrentState IVRState `json:"current_state" db:"current_state"`
	FinalState   IVRState `json:"final_state,omitempty" db:"final_state"`

	Transitions  []StateTransition `json:"transitions" db:"transitions"`
	Interactions []AIInteraction   `json:"interactions" db:"interactions"`
	Errors       []ErrorRecord     `json:"errors" db:"errors"`

	TotalAIInteractions    int     `json:"total_ai_interactions" db:"total_ai_interactions"`
	TotalRecordingSeconds  float64 `json:"total_recording_seconds" db:"total_recording_seconds"`
	AverageRecordingLength float64 `json:"average_recording_length" db:"average_recording_length"`

	RecordingURLs []string `json:"recording_urls" db:"recording_urls"`
	DTMFInputs    []string `json:"dtmf_inputs" db:"dtmf_inputs"`

	WasTransferredToAgent bool       `json:"was_transferred_to_agent" db:"was_transferred_to_agent"`
	TransferRequestTime   *time.Time `json:"transfer_request_time,omitempty" db:"transfer_request_time"`
	CompletedSuccessfully bool       `json:"completed_successfully" db:"completed_successfully"`

	TerminationReason TerminationReason `json:"termination_reason" db:"termination_reason"`
	TerminationTime   time.Time         `json:"termination_time" db:"termination_time"`

	EngagementScore       int    `json:"engagement_score" db:"engagement_score"`
	SatisfactionIndicator string `json:"user_satisfaction_indicator" db:"user_satisfaction_indicator"`
}

// IsFinalized reports whether the record has been closed out.
// The provisional termination fields written at creation do not count;
// only a real finalization sets CallEndTime.
func (r *EngagementRecord) IsFinalized() bool {
	return r.CallEndTime != nil
}

func (r *EngagementRecord) HasDTMFInput(input string) bool {
	for _, d := range r.DTMFInputs {
		if d == input {
			return true
		}
	}
	return false
}

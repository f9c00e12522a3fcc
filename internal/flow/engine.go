package flow

import (
	"errors"
	"sync"

	"agrivoice-platform/internal/session"
)

// Engine evaluates DTMF menu navigation.
//
// Order of evaluation:
//  1. Menu lookup for the caller's current state
//  2. Digit match against the menu's options
//  3. Invalid input: replay the menu up to MaxRetries times
//  4. Retries exhausted: terminate with max-retries-exceeded
//
// The engine returns decisions only. Side effects (state transitions,
// finalization, prompt rendering) belong to the webhook handlers.

type Engine struct {
	menus      map[session.IVRState]Menu
	maxRetries int

	mu      sync.Mutex
	retries map[string]int // sessionID -> consecutive invalid inputs
}

// Menu is one DTMF menu: the prompt to offer and what each digit does.
type Menu struct {
	PromptKey string
	Options   map[string]Step
}

// Step is the outcome of one digit press.
type Step struct {
	NextState session.IVRState
	Action    Action
	PromptKey string
	Language  string

	Terminate         bool
	TerminationReason session.TerminationReason
}

var ErrNoMenu = errors.New("flow: no menu for state")

func NewEngine(maxRetries int) *Engine {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Engine{
		menus:      defaultMenus(),
		maxRetries: maxRetries,
		retries:    make(map[string]int),
	}
}

// Greeting is the decision for a freshly answered call: speak the welcome
// and offer the language menu.
func (e *Engine) Greeting() Decision {
	return Decision{
		NextState: session.StateLanguageSelection,
		Action:    ActionGather,
		PromptKey: PromptLanguageMenu,
		Reason:    "greeting",
	}
}

// Decide maps (current state, digits) to the next step for sessionID.
func (e *Engine) Decide(sessionID string, current session.IVRState, digits string) (Decision, error) {
	menu, ok := e.menus[current]
	if !ok {
		return Decision{}, ErrNoMenu
	}

	step, ok := menu.Options[digits]
	if !ok {
		return e.invalidInput(sessionID, current, menu), nil
	}

	e.clearRetries(sessionID)
	return Decision{
		NextState:         step.NextState,
		Action:            step.Action,
		PromptKey:         step.PromptKey,
		Language:          step.Language,
		Terminate:         step.Terminate,
		TerminationReason: step.TerminationReason,
		Reason:            "selected",
	}, nil
}

// AfterAnswer is the decision once an AI answer has been played: offer the
// post-answer menu.
func (e *Engine) AfterAnswer() Decision {
	return Decision{
		NextState: session.StatePostAIMenu,
		Action:    ActionGather,
		PromptKey: PromptPostAIMenu,
		Reason:    "answer_played",
	}
}

// Forget drops the retry counter for a finished session.
func (e *Engine) Forget(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.retries, sessionID)
}

func (e *Engine) invalidInput(sessionID string, current session.IVRState, menu Menu) Decision {
	e.mu.Lock()
	e.retries[sessionID]++
	n := e.retries[sessionID]
	e.mu.Unlock()

	if n >= e.maxRetries {
		e.Forget(sessionID)
		return Decision{
			NextState:         session.StateCallEnded,
			Action:            ActionHangup,
			PromptKey:         PromptGoodbye,
			Terminate:         true,
			TerminationReason: session.ReasonMaxRetriesReached,
			Reason:            "max_retries",
		}
	}
	return Decision{
		NextState: current,
		Action:    ActionGather,
		PromptKey: menu.PromptKey,
		Reason:    "invalid_input",
	}
}

func (e *Engine) clearRetries(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.retries, sessionID)
}

// Prompt keys. The voice renderer resolves these to localized text.
const (
	PromptWelcome      = "welcome"
	PromptLanguageMenu = "language_menu"
	PromptRecordQuery  = "record_query"
	PromptPostAIMenu   = "post_ai_menu"
	PromptTransfer     = "transfer"
	PromptGoodbye      = "goodbye"
	PromptAIFallback   = "ai_fallback"
)

func defaultMenus() map[session.IVRState]Menu {
	return map[session.IVRState]Menu{
		session.StateLanguageSelection: {
			PromptKey: PromptLanguageMenu,
			Options: map[string]Step{
				"1": {NextState: session.StateRecordingPrompt, Action: ActionRecord, PromptKey: PromptRecordQuery, Language: "en"},
				"2": {NextState: session.StateRecordingPrompt, Action: ActionRecord, PromptKey: PromptRecordQuery, Language: "ha"},
				"3": {NextState: session.StateRecordingPrompt, Action: ActionRecord, PromptKey: PromptRecordQuery, Language: "yo"},
				"0": {NextState: session.StateAgentTransfer, Action: ActionTransfer, PromptKey: PromptTransfer},
			},
		},
		session.StatePostAIMenu: {
			PromptKey: PromptPostAIMenu,
			Options: map[string]Step{
				"1": {NextState: session.StateFollowUpRecording, Action: ActionRecord, PromptKey: PromptRecordQuery},
				"2": {NextState: session.StateAIResponse, Action: ActionReplay},
				"0": {NextState: session.StateAgentTransfer, Action: ActionTransfer, PromptKey: PromptTransfer},
				"9": {NextState: session.StateCallEnded, Action: ActionHangup, PromptKey: PromptGoodbye, Terminate: true, TerminationReason: session.ReasonCompleted},
			},
		},
	}
}

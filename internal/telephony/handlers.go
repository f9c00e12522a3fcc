package telephony

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"agrivoice-platform/internal/advisor"
	"agrivoice-platform/internal/flow"
	"agrivoice-platform/internal/session"
	"agrivoice-platform/internal/voice"

	"github.com/gin-gonic/gin"
)

// Handlers is the voice webhook surface. Keep these thin: parse the form,
// consult the flow engine, update the tracker, render response XML.
//
// Webhooks answer 200 with valid XML wherever possible. A 5xx would make the
// provider replay its error announcement at the caller; a spoken apology and
// hangup is the better failure mode.

type QueryAdvisor interface {
	Ask(ctx context.Context, query, language string) advisor.Answer
	Transcribe(ctx context.Context, recordingURL, language string) (string, error)
}

type PromptRenderer interface {
	Render(ctx context.Context, text, language string) (voice.RenderedPrompt, error)
}

type AgentDirectory interface {
	AgentFor(ctx context.Context, phoneNumber string) (string, error)
}

// CallLimiter caps concurrent live calls per caller. Acquire failing open
// (an error, not a rejection) must never block a call.
type CallLimiter interface {
	Acquire(ctx context.Context, phoneNumber string) (bool, error)
	Release(ctx context.Context, phoneNumber string) error
}

type Handlers struct {
	Tracker *session.Tracker
	Flow    *flow.Engine
	Repo    session.Repository

	Advisor  QueryAdvisor
	Renderer PromptRenderer
	Agents   AgentDirectory
	Limiter  CallLimiter

	// BasePath is where Register mounted the routes, e.g. "/webhooks/voice".
	BasePath string

	Log *slog.Logger
}

func (h Handlers) Register(r gin.IRouter) {
	r.POST("/inbound", h.HandleInboundCall)
	r.POST("/menu", h.HandleMenu)
	r.POST("/recording", h.HandleRecordingComplete)
	r.POST("/status", h.HandleStatusCallback)
}

// HandleInboundCall answers a new call: starts the session and plays the
// welcome prompt plus the language menu.
func (h Handlers) HandleInboundCall(c *gin.Context) {
	form, err := ParseInboundForm(c.Request)
	if err != nil || form.From == "" {
		c.String(http.StatusBadRequest, "invalid webhook form")
		return
	}
	ctx := c.Request.Context()

	if h.Limiter != nil {
		ok, err := h.Limiter.Acquire(ctx, form.From)
		if err != nil {
			h.logger().Warn("call cap check failed, allowing call", "error", err)
		} else if !ok {
			h.respondHangup(c, "en")
			return
		}
	}

	var meta map[string]string
	if form.To != "" {
		meta = map[string]string{"dialed_number": form.To}
	}
	sessionID, err := h.Tracker.StartSession(ctx, form.From, form.CallSid, meta)
	if err != nil {
		h.logger().Error("start session failed", "error", err, "call_sid", form.CallSid)
		if h.Limiter != nil {
			_ = h.Limiter.Release(ctx, form.From)
		}
		h.respondHangup(c, "en")
		return
	}

	greeting := h.Flow.Greeting()
	h.Tracker.RecordTransition(ctx, sessionID, greeting.NextState, "", "")

	prompt := &VoiceResponse{}
	h.speak(ctx, prompt, voice.PromptText(flow.PromptWelcome, "en"), "en")
	h.speak(ctx, prompt, voice.PromptText(greeting.PromptKey, "en"), "en")

	vr := &VoiceResponse{}
	vr.Gather(h.menuURL(sessionID), 1, prompt)
	// No input falls through the Gather; loop back so the retry counter
	// runs instead of dead air.
	vr.Redirect(h.menuURL(sessionID))
	h.respondXML(c, vr)
}

// HandleMenu processes one DTMF digit against the current menu.
func (h Handlers) HandleMenu(c *gin.Context) {
	form, err := ParseInboundForm(c.Request)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid webhook form")
		return
	}
	ctx := c.Request.Context()
	sessionID := c.Query("session")

	live, ok := h.Tracker.ActiveSession(sessionID)
	if !ok {
		h.respondHangup(c, "en")
		return
	}
	lang := sessionLanguage(live)

	dec, err := h.Flow.Decide(sessionID, live.CurrentState, form.Digits)
	if err != nil {
		h.logger().Error("no menu for state", "session_id", sessionID, "state", live.CurrentState)
		h.Tracker.TrackError(ctx, sessionID, "menu post in non-menu state "+string(live.CurrentState), live.CurrentState, session.SeverityMedium)
		h.finalize(ctx, sessionID, session.ReasonSystemError, false)
		h.respondHangup(c, lang)
		return
	}

	if dec.Language != "" {
		h.Tracker.RecordLanguageSelection(ctx, sessionID, dec.Language)
		lang = dec.Language
	}
	// Terminating decisions get their call-ended transition synthesized at
	// finalization; recording it here would double it up.
	if !dec.Terminate {
		h.Tracker.RecordTransition(ctx, sessionID, dec.NextState, form.Digits, "")
	}

	switch dec.Action {
	case flow.ActionGather:
		prompt := &VoiceResponse{}
		h.speak(ctx, prompt, voice.PromptText(dec.PromptKey, lang), lang)
		vr := &VoiceResponse{}
		vr.Gather(h.menuURL(sessionID), 1, prompt)
		vr.Redirect(h.menuURL(sessionID))
		h.respondXML(c, vr)

	case flow.ActionRecord:
		vr := &VoiceResponse{}
		h.speak(ctx, vr, voice.PromptText(dec.PromptKey, lang), lang)
		vr.Record(h.recordingURL(sessionID), 120)
		h.respondXML(c, vr)

	case flow.ActionReplay:
		vr := &VoiceResponse{}
		answer := h.lastAnswer(ctx, sessionID)
		if answer == "" {
			answer = voice.PromptText(flow.PromptAIFallback, lang)
		}
		h.speak(ctx, vr, answer, lang)
		// Re-present the menu so the state machine is back where the
		// next digit expects it.
		h.Tracker.RecordTransition(ctx, sessionID, session.StatePostAIMenu, "", "")
		prompt := &VoiceResponse{}
		h.speak(ctx, prompt, voice.PromptText(flow.PromptPostAIMenu, lang), lang)
		vr.Gather(h.menuURL(sessionID), 1, prompt)
		vr.Redirect(h.menuURL(sessionID))
		h.respondXML(c, vr)

	case flow.ActionTransfer:
		h.Tracker.RecordAgentTransferRequested(ctx, sessionID)
		agent, err := h.agentFor(ctx, live.PhoneNumber)
		if err != nil {
			h.logger().Error("agent transfer failed", "session_id", sessionID, "error", err)
			h.Tracker.TrackError(ctx, sessionID, "agent transfer failed: "+err.Error(), dec.NextState, session.SeverityHigh)
			h.finalize(ctx, sessionID, session.ReasonSystemError, false)
			h.respondHangup(c, lang)
			return
		}
		vr := &VoiceResponse{}
		h.speak(ctx, vr, voice.PromptText(dec.PromptKey, lang), lang)
		vr.Dial(agent)
		h.finalize(ctx, sessionID, session.ReasonTransferred, false)
		h.respondXML(c, vr)

	case flow.ActionHangup:
		vr := &VoiceResponse{}
		h.speak(ctx, vr, voice.PromptText(dec.PromptKey, lang), lang)
		vr.Hangup()
		if dec.Terminate {
			h.finalize(ctx, sessionID, dec.TerminationReason, dec.TerminationReason == session.ReasonCompleted)
		}
		h.respondXML(c, vr)

	default:
		h.logger().Error("unhandled flow action", "action", dec.Action)
		h.respondHangup(c, lang)
	}
}

// HandleRecordingComplete receives a finished voice recording, runs it
// through the advisor and speaks the answer followed by the post-answer menu.
func (h Handlers) HandleRecordingComplete(c *gin.Context) {
	form, err := ParseInboundForm(c.Request)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid webhook form")
		return
	}
	ctx := c.Request.Context()
	sessionID := c.Query("session")

	live, ok := h.Tracker.ActiveSession(sessionID)
	if !ok {
		h.respondHangup(c, "en")
		return
	}
	lang := sessionLanguage(live)

	h.Tracker.RecordTransition(ctx, sessionID, session.StateAIProcessing, "", "")
	if form.RecordingURL != "" {
		h.Tracker.RecordRecordingURL(ctx, sessionID, form.RecordingURL)
	}

	query := ""
	if form.RecordingURL != "" {
		query, err = h.Advisor.Transcribe(ctx, form.RecordingURL, lang)
		if err != nil {
			h.logger().Warn("transcription failed", "session_id", sessionID, "error", err)
			h.Tracker.TrackError(ctx, sessionID, "transcription failed: "+err.Error(), session.StateAIProcessing, session.SeverityMedium)
		}
	}

	aiStart := time.Now()
	answer := h.Advisor.Ask(ctx, query, lang)
	aiMillis := time.Since(aiStart).Milliseconds()
	if answer.Fallback {
		h.Tracker.TrackError(ctx, sessionID, "advisor fallback answer", session.StateAIProcessing, session.SeverityMedium)
	}

	vr := &VoiceResponse{}
	var ttsMillis int64
	rendered, rerr := h.render(ctx, answer.Text, lang)
	if rerr == nil {
		ttsMillis = rendered.GenerationMillis
		vr.Play(rendered.URL)
	} else {
		vr.Say(answer.Text, voice.SayLanguage(lang))
	}

	h.Tracker.RecordInteraction(ctx, sessionID, form.RecordingDuration, query, answer.Text, aiMillis, ttsMillis, answer.Confidence)
	h.Tracker.RecordTransition(ctx, sessionID, session.StateAIResponse, "", "")

	after := h.Flow.AfterAnswer()
	h.Tracker.RecordTransition(ctx, sessionID, after.NextState, "", "")

	prompt := &VoiceResponse{}
	h.speak(ctx, prompt, voice.PromptText(after.PromptKey, lang), lang)
	vr.Gather(h.menuURL(sessionID), 1, prompt)
	vr.Redirect(h.menuURL(sessionID))
	h.respondXML(c, vr)
}

// HandleStatusCallback closes the session when the provider reports the call
// leg has ended. Non-terminal statuses are acknowledged and ignored.
func (h Handlers) HandleStatusCallback(c *gin.Context) {
	form, err := ParseInboundForm(c.Request)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid webhook form")
		return
	}
	if !form.IsTerminalStatus() {
		c.String(http.StatusOK, "")
		return
	}

	live, ok := h.Tracker.SessionByCallID(form.CallSid)
	if !ok {
		// Finalized already through a menu path, or never started.
		c.String(http.StatusOK, "")
		return
	}

	reason := session.ReasonUserHangup
	switch form.CallStatus {
	case "busy", "failed", "no-answer", "canceled":
		reason = session.ReasonNetworkIssue
	}
	h.finalize(c.Request.Context(), live.SessionID, reason, false)
	c.String(http.StatusOK, "")
}

func (h Handlers) finalize(ctx context.Context, sessionID string, reason session.TerminationReason, completed bool) {
	live, wasLive := h.Tracker.ActiveSession(sessionID)
	h.Tracker.FinalizeSession(ctx, sessionID, reason, completed)
	h.Flow.Forget(sessionID)
	if wasLive && h.Limiter != nil {
		if err := h.Limiter.Release(ctx, live.PhoneNumber); err != nil {
			h.logger().Warn("call cap release failed", "error", err, "session_id", sessionID)
		}
	}
}

// speak plays a rendered clip for text, falling back to provider TTS when
// rendering is unavailable.
func (h Handlers) speak(ctx context.Context, vr *VoiceResponse, text, language string) {
	if text == "" {
		return
	}
	if rendered, err := h.render(ctx, text, language); err == nil {
		vr.Play(rendered.URL)
		return
	}
	vr.Say(text, voice.SayLanguage(language))
}

func (h Handlers) render(ctx context.Context, text, language string) (voice.RenderedPrompt, error) {
	if h.Renderer == nil {
		return voice.RenderedPrompt{}, errNoRenderer
	}
	return h.Renderer.Render(ctx, text, language)
}

func (h Handlers) agentFor(ctx context.Context, phoneNumber string) (string, error) {
	if h.Agents == nil {
		return "", errNoAgentDirectory
	}
	return h.Agents.AgentFor(ctx, phoneNumber)
}

// lastAnswer returns the most recent advisor response for a session, for the
// "hear that again" menu option.
func (h Handlers) lastAnswer(ctx context.Context, sessionID string) string {
	if h.Repo == nil {
		return ""
	}
	rec, ok, err := h.Repo.Find(ctx, sessionID)
	if err != nil || !ok || len(rec.Interactions) == 0 {
		return ""
	}
	return rec.Interactions[len(rec.Interactions)-1].AIResponse
}

func (h Handlers) menuURL(sessionID string) string {
	return h.BasePath + "/menu?session=" + url.QueryEscape(sessionID)
}

func (h Handlers) recordingURL(sessionID string) string {
	return h.BasePath + "/recording?session=" + url.QueryEscape(sessionID)
}

func (h Handlers) respondHangup(c *gin.Context, language string) {
	vr := &VoiceResponse{}
	vr.Say(voice.PromptText(flow.PromptGoodbye, language), voice.SayLanguage(language))
	vr.Hangup()
	h.respondXML(c, vr)
}

func (h Handlers) respondXML(c *gin.Context, vr *VoiceResponse) {
	body, err := vr.Render()
	if err != nil {
		h.logger().Error("render voice response failed", "error", err)
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(body))
}

func (h Handlers) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

func sessionLanguage(live session.CallSession) string {
	if live.SelectedLanguage != "" {
		return live.SelectedLanguage
	}
	return "en"
}

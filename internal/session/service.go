package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Tracker is the call-session state machine and engagement pipeline.
//
// Error posture (important):
//   - StartSession: a storage failure is fatal and rolls back the live entry.
//   - Everything after: NotFound and storage failures are logged and
//     swallowed. Webhook retries and out-of-order events are normal, and a
//     call in progress must never be dropped because a metrics write failed.
type Tracker struct {
	registry *Registry
	repo     Repository
	policy   ScorePolicy

	log   *slog.Logger
	clock func() time.Time
}

func NewTracker(registry *Registry, repo Repository, policy ScorePolicy, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	t := &Tracker{
		registry: registry,
		repo:     repo,
		policy:   policy,
		log:      log,
		clock:    time.Now,
	}
	registry.OnIdle(t.timeoutSession)
	return t
}

// StartSession registers a new live call and persists its record shell.
//
// The shell carries provisional termination fields (user-hangup at the start
// timestamp); a real finalization overwrites both. A shell that never gets
// finalized therefore still reads as a hangup rather than an open call.
func (t *Tracker) StartSession(ctx context.Context, phoneNumber, callID string, metadata map[string]string) (string, error) {
	if phoneNumber == "" {
		return "", fmt.Errorf("%w: phone number required", ErrInvalidArgument)
	}

	now := t.clock().UTC()
	sessionID := uuid.NewString()

	live := &CallSession{
		SessionID:      sessionID,
		PhoneNumber:    phoneNumber,
		CallID:         callID,
		StartTime:      now,
		CurrentState:   StateCallInitiated,
		StateStartTime: now,
		Metadata:       metadata,
	}
	t.registry.Put(live)

	rec := EngagementRecord{
		SessionID:             sessionID,
		PhoneNumber:           phoneNumber,
		CallID:                callID,
		CallStartTime:         now,
		CurrentState:          StateCallInitiated,
		TerminationReason:     ReasonUserHangup,
		TerminationTime:       now,
		SatisfactionIndicator: "low",
	}
	if err := t.repo.Create(ctx, rec); err != nil {
		t.registry.Remove(sessionID)
		return "", fmt.Errorf("session: creating record: %w", err)
	}

	t.log.Info("session started", "session_id", sessionID, "phone", phoneNumber)
	return sessionID, nil
}

func (t *Tracker) ActiveSession(sessionID string) (CallSession, bool) {
	return t.registry.Get(sessionID)
}

func (t *Tracker) ActiveSessions() []CallSession {
	return t.registry.List()
}

// SessionByCallID resolves a provider call leg id to the live session.
func (t *Tracker) SessionByCallID(callID string) (CallSession, bool) {
	if callID == "" {
		return CallSession{}, false
	}
	for _, s := range t.registry.List() {
		if s.CallID == callID {
			return s, true
		}
	}
	return CallSession{}, false
}

// RecordTransition moves the live session to toState and appends the move to
// the persisted transition log. Unknown sessions are a warning, never an
// error.
func (t *Tracker) RecordTransition(ctx context.Context, sessionID string, toState IVRState, userInput, errorMessage string) {
	now := t.clock().UTC()

	from, heldMillis, ok := t.registry.Advance(sessionID, toState, now)
	if !ok {
		t.log.Warn("transition for unknown session dropped", "session_id", sessionID, "to_state", toState)
		return
	}

	tr := StateTransition{
		FromState:      from,
		ToState:        toState,
		Timestamp:      now,
		DurationMillis: heldMillis,
		UserInput:      userInput,
		Error:          errorMessage,
	}
	if err := t.repo.AppendTransition(ctx, sessionID, tr, userInput); err != nil {
		t.log.Error("transition write failed", "session_id", sessionID, "err", err)
	}

	if errorMessage != "" {
		t.TrackError(ctx, sessionID, errorMessage, toState, SeverityMedium)
	}
}

// RecordInteraction appends one user-query/AI-response exchange. The counter
// and average updates happen inside one storage write, so concurrent
// interactions for the same session cannot lose updates.
func (t *Tracker) RecordInteraction(ctx context.Context, sessionID string, recordingSeconds float64, query, response string, aiMillis, ttsMillis int64, confidence *float64) {
	live, ok := t.registry.Get(sessionID)
	if !ok {
		t.log.Warn("interaction for unknown session dropped", "session_id", sessionID)
		return
	}
	t.registry.Touch(sessionID)

	language := live.SelectedLanguage
	if language == "" {
		language = "en"
	}

	in := AIInteraction{
		Timestamp:            t.clock().UTC(),
		UserRecordingSeconds: recordingSeconds,
		UserQuery:            query,
		AIResponse:           response,
		AIProcessingMillis:   aiMillis,
		TTSGenerationMillis:  ttsMillis,
		Language:             language,
		Confidence:           confidence,
	}
	if err := t.repo.AppendInteraction(ctx, sessionID, in); err != nil {
		t.log.Error("interaction write failed", "session_id", sessionID, "err", err)
		return
	}
	t.refreshScore(ctx, sessionID)
}

// RecordLanguageSelection stores the caller's language choice. Calling it
// again overwrites: last write wins.
func (t *Tracker) RecordLanguageSelection(ctx context.Context, sessionID, language string) {
	if !t.registry.SetLanguage(sessionID, language) {
		t.log.Warn("language selection for unknown session dropped", "session_id", sessionID)
		return
	}
	if err := t.repo.SetLanguage(ctx, sessionID, language, t.clock().UTC()); err != nil {
		t.log.Error("language write failed", "session_id", sessionID, "err", err)
		return
	}
	t.refreshScore(ctx, sessionID)
}

// RecordAgentTransferRequested marks the record as handed to a human agent.
func (t *Tracker) RecordAgentTransferRequested(ctx context.Context, sessionID string) {
	if !t.registry.Touch(sessionID) {
		t.log.Warn("transfer request for unknown session dropped", "session_id", sessionID)
		return
	}
	if err := t.repo.SetTransferRequested(ctx, sessionID, t.clock().UTC()); err != nil {
		t.log.Error("transfer write failed", "session_id", sessionID, "err", err)
	}
}

// RecordRecordingURL appends a stored voice recording location to the record.
func (t *Tracker) RecordRecordingURL(ctx context.Context, sessionID, url string) {
	if url == "" || !t.registry.Touch(sessionID) {
		return
	}
	if err := t.repo.AppendRecordingURL(ctx, sessionID, url); err != nil {
		t.log.Error("recording url write failed", "session_id", sessionID, "err", err)
	}
}

// TrackError appends an ErrorRecord. It does not change the current state.
func (t *Tracker) TrackError(ctx context.Context, sessionID, message string, state IVRState, severity Severity) {
	if severity == "" {
		severity = SeverityMedium
	}
	e := ErrorRecord{
		Timestamp: t.clock().UTC(),
		Message:   message,
		State:     state,
		Severity:  severity,
	}
	if err := t.repo.AppendError(ctx, sessionID, e); err != nil {
		t.log.Error("error record write failed", "session_id", sessionID, "err", err)
		return
	}
	t.refreshScore(ctx, sessionID)
}

// FinalizeSession closes out a call. It is effectively-once: the live entry
// is removed first, and whoever loses that race (an explicit end racing the
// idle timeout, or a duplicate webhook) hits the warn-and-return path.
func (t *Tracker) FinalizeSession(ctx context.Context, sessionID string, reason TerminationReason, completed bool) {
	live, ok := t.registry.Remove(sessionID)
	if !ok {
		t.log.Warn("finalize for unknown session ignored", "session_id", sessionID, "reason", reason)
		return
	}

	now := t.clock().UTC()

	// finalState freezes the state the call was actually in; the synthesized
	// call-ended transition below only closes the transition log.
	finalState := live.CurrentState
	if finalState != StateCallEnded {
		tr := StateTransition{
			FromState:      finalState,
			ToState:        StateCallEnded,
			Timestamp:      now,
			DurationMillis: now.Sub(live.StateStartTime).Milliseconds(),
		}
		if err := t.repo.AppendTransition(ctx, sessionID, tr, ""); err != nil {
			t.log.Error("final transition write failed", "session_id", sessionID, "err", err)
		}
	}

	totalSeconds := int(now.Sub(live.StartTime).Seconds())

	rec, found, err := t.repo.Find(ctx, sessionID)
	if err != nil || !found {
		t.log.Error("finalize read failed", "session_id", sessionID, "found", found, "err", err)
		return
	}
	rec.FinalState = finalState
	rec.TotalDurationSeconds = totalSeconds
	rec.CompletedSuccessfully = completed
	rec.SelectedLanguage = pickLanguage(rec.SelectedLanguage, live.SelectedLanguage)

	score := t.policy.Score(&rec)

	fin := Finalization{
		CallEndTime:           now,
		TotalDurationSeconds:  totalSeconds,
		FinalState:            finalState,
		TerminationReason:     reason,
		TerminationTime:       now,
		Completed:             completed,
		EngagementScore:       score,
		SatisfactionIndicator: t.policy.Satisfaction(score),
	}
	if err := t.repo.Finalize(ctx, sessionID, fin); err != nil {
		t.log.Error("finalize write failed", "session_id", sessionID, "err", err)
		return
	}

	t.log.Info("session finalized",
		"session_id", sessionID,
		"reason", reason,
		"final_state", finalState,
		"duration_s", totalSeconds,
		"score", score,
	)
}

func (t *Tracker) timeoutSession(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	t.log.Info("session idle timeout", "session_id", sessionID)
	t.FinalizeSession(ctx, sessionID, ReasonTimeout, false)
}

// refreshScore recomputes and persists the engagement score from the stored
// record so it is never stale after a score-affecting write. The score is a
// plain SET (idempotent), so a racing refresh at worst writes a value one
// event old, and finalization recomputes once more at the end.
func (t *Tracker) refreshScore(ctx context.Context, sessionID string) {
	rec, found, err := t.repo.Find(ctx, sessionID)
	if err != nil || !found {
		return
	}
	score := t.policy.Score(&rec)
	if err := t.repo.SetScore(ctx, sessionID, score, t.policy.Satisfaction(score)); err != nil {
		t.log.Error("score write failed", "session_id", sessionID, "err", err)
	}
}

func pickLanguage(persisted, live string) string {
	if persisted != "" {
		return persisted
	}
	return live
}

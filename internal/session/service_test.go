package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock advances manually so duration accounting is deterministic.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracker(t *testing.T, repo Repository) (*Tracker, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	reg := NewRegistry(time.Hour)
	tr := NewTracker(reg, repo, DefaultScorePolicy(), testLogger())
	tr.clock = clk.Now
	return tr, clk
}

func TestStartSession_PersistsShell(t *testing.T) {
	repo := NewMemoryRepo()
	tr, clk := newTestTracker(t, repo)

	id, err := tr.StartSession(context.Background(), "+2348011112222", "CA123", nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	rec, found, _ := repo.Find(context.Background(), id)
	if !found {
		t.Fatalf("expected record")
	}
	if rec.CurrentState != StateCallInitiated {
		t.Fatalf("expected call-initiated, got %s", rec.CurrentState)
	}
	if rec.TerminationReason != ReasonUserHangup {
		t.Fatalf("expected provisional user-hangup, got %s", rec.TerminationReason)
	}
	if !rec.TerminationTime.Equal(clk.Now()) {
		t.Fatalf("expected provisional termination time = start time")
	}
	if rec.IsFinalized() {
		t.Fatalf("shell must not read as finalized")
	}
	if _, ok := tr.ActiveSession(id); !ok {
		t.Fatalf("expected live session")
	}
}

func TestStartSession_StorageFailureRollsBack(t *testing.T) {
	repo := NewMemoryRepo()
	repo.FailWrites = errors.New("db down")
	tr, _ := newTestTracker(t, repo)

	_, err := tr.StartSession(context.Background(), "+2348011112222", "", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if n := len(tr.ActiveSessions()); n != 0 {
		t.Fatalf("expected no dangling live session, got %d", n)
	}
}

func TestRecordTransition_AccountsDurationAndInputs(t *testing.T) {
	repo := NewMemoryRepo()
	tr, clk := newTestTracker(t, repo)
	id, _ := tr.StartSession(context.Background(), "+2348011112222", "", nil)

	clk.Advance(2 * time.Second)
	tr.RecordTransition(context.Background(), id, StateWelcome, "", "")
	clk.Advance(3 * time.Second)
	tr.RecordTransition(context.Background(), id, StateLanguageSelection, "1", "")
	tr.RecordTransition(context.Background(), id, StateLanguageSelection, "1", "")

	rec, _, _ := repo.Find(context.Background(), id)
	if len(rec.Transitions) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(rec.Transitions))
	}
	if rec.Transitions[0].FromState != StateCallInitiated || rec.Transitions[0].ToState != StateWelcome {
		t.Fatalf("unexpected first transition: %+v", rec.Transitions[0])
	}
	if rec.Transitions[0].DurationMillis != 2000 {
		t.Fatalf("expected 2000ms in call-initiated, got %d", rec.Transitions[0].DurationMillis)
	}
	if rec.Transitions[1].DurationMillis != 3000 {
		t.Fatalf("expected 3000ms in welcome, got %d", rec.Transitions[1].DurationMillis)
	}
	if len(rec.DTMFInputs) != 1 || rec.DTMFInputs[0] != "1" {
		t.Fatalf("expected distinct dtmf inputs [1], got %v", rec.DTMFInputs)
	}
	live, _ := tr.ActiveSession(id)
	if live.CurrentState != StateLanguageSelection {
		t.Fatalf("live state not advanced: %s", live.CurrentState)
	}
}

func TestRecordTransition_UnknownSessionIsSafe(t *testing.T) {
	repo := NewMemoryRepo()
	tr, _ := newTestTracker(t, repo)

	tr.RecordTransition(context.Background(), "nope", StateWelcome, "", "")
	tr.RecordInteraction(context.Background(), "nope", 5, "q", "a", 100, 100, nil)
	tr.FinalizeSession(context.Background(), "nope", ReasonUserHangup, false)

	if _, found, _ := repo.Find(context.Background(), "nope"); found {
		t.Fatalf("no record should have been created")
	}
}

func TestRecordTransition_ErrorMessageAppendsErrorRecord(t *testing.T) {
	repo := NewMemoryRepo()
	tr, _ := newTestTracker(t, repo)
	id, _ := tr.StartSession(context.Background(), "+2348011112222", "", nil)

	tr.RecordTransition(context.Background(), id, StateError, "", "tts unavailable")

	rec, _, _ := repo.Find(context.Background(), id)
	if len(rec.Errors) != 1 {
		t.Fatalf("expected 1 error record, got %d", len(rec.Errors))
	}
	if rec.Errors[0].Severity != SeverityMedium {
		t.Fatalf("expected medium severity default, got %s", rec.Errors[0].Severity)
	}
	if rec.Errors[0].State != StateError {
		t.Fatalf("expected error recorded at error-state, got %s", rec.Errors[0].State)
	}
}

func TestRecordInteraction_MonotonicCounters(t *testing.T) {
	repo := NewMemoryRepo()
	tr, _ := newTestTracker(t, repo)
	id, _ := tr.StartSession(context.Background(), "+2348011112222", "", nil)
	tr.RecordLanguageSelection(context.Background(), id, "ha")

	durations := []float64{10, 14, 6}
	for _, d := range durations {
		tr.RecordInteraction(context.Background(), id, d, "cow is coughing", "give antibiotics", 800, 300, nil)
	}

	rec, _, _ := repo.Find(context.Background(), id)
	if rec.TotalAIInteractions != 3 {
		t.Fatalf("expected 3 interactions, got %d", rec.TotalAIInteractions)
	}
	if rec.TotalRecordingSeconds != 30 {
		t.Fatalf("expected 30s total recording, got %v", rec.TotalRecordingSeconds)
	}
	if rec.AverageRecordingLength != 10 {
		t.Fatalf("expected 10s average, got %v", rec.AverageRecordingLength)
	}
	for _, in := range rec.Interactions {
		if in.Language != "ha" {
			t.Fatalf("expected interactions tagged with selected language, got %q", in.Language)
		}
	}
}

func TestRecordInteraction_DefaultsLanguageToEnglish(t *testing.T) {
	repo := NewMemoryRepo()
	tr, _ := newTestTracker(t, repo)
	id, _ := tr.StartSession(context.Background(), "+2348011112222", "", nil)

	tr.RecordInteraction(context.Background(), id, 5, "q", "a", 100, 100, nil)

	rec, _, _ := repo.Find(context.Background(), id)
	if rec.Interactions[0].Language != "en" {
		t.Fatalf("expected en default, got %q", rec.Interactions[0].Language)
	}
}

func TestRecordInteraction_SwallowsStorageFailure(t *testing.T) {
	repo := NewMemoryRepo()
	tr, _ := newTestTracker(t, repo)
	id, _ := tr.StartSession(context.Background(), "+2348011112222", "", nil)

	repo.FailWrites = errors.New("db down")
	tr.RecordInteraction(context.Background(), id, 5, "q", "a", 100, 100, nil)

	// The call must survive a metrics fault.
	if _, ok := tr.ActiveSession(id); !ok {
		t.Fatalf("live session should remain active")
	}
}

func TestRecordLanguageSelection_LastWriteWins(t *testing.T) {
	repo := NewMemoryRepo()
	tr, _ := newTestTracker(t, repo)
	id, _ := tr.StartSession(context.Background(), "+2348011112222", "", nil)

	tr.RecordLanguageSelection(context.Background(), id, "en")
	tr.RecordLanguageSelection(context.Background(), id, "sw")

	rec, _, _ := repo.Find(context.Background(), id)
	if rec.SelectedLanguage != "sw" {
		t.Fatalf("expected sw, got %q", rec.SelectedLanguage)
	}
	live, _ := tr.ActiveSession(id)
	if live.SelectedLanguage != "sw" {
		t.Fatalf("expected live session updated, got %q", live.SelectedLanguage)
	}
}

func TestFinalizeSession_ImmediateHangupScoresZero(t *testing.T) {
	repo := NewMemoryRepo()
	tr, _ := newTestTracker(t, repo)
	id, _ := tr.StartSession(context.Background(), "+2348011112222", "", nil)

	tr.FinalizeSession(context.Background(), id, ReasonUserHangup, false)

	rec, _, _ := repo.Find(context.Background(), id)
	if rec.TotalDurationSeconds != 0 {
		t.Fatalf("expected ~0 duration, got %d", rec.TotalDurationSeconds)
	}
	if rec.FinalState != StateCallInitiated {
		t.Fatalf("expected final state call-initiated, got %s", rec.FinalState)
	}
	if rec.EngagementScore != 0 {
		t.Fatalf("expected score 0, got %d", rec.EngagementScore)
	}
	if rec.SatisfactionIndicator != "low" {
		t.Fatalf("expected low, got %s", rec.SatisfactionIndicator)
	}
}

func TestFinalizeSession_EngagedCallScenario(t *testing.T) {
	repo := NewMemoryRepo()
	tr, clk := newTestTracker(t, repo)
	id, _ := tr.StartSession(context.Background(), "+2348011112222", "", nil)

	tr.RecordLanguageSelection(context.Background(), id, "en")
	tr.RecordTransition(context.Background(), id, StateRecordingPrompt, "", "")
	for i := 0; i < 3; i++ {
		conf := 0.9
		tr.RecordInteraction(context.Background(), id, 12, "cow is coughing", "give antibiotics...", 800, 300, &conf)
	}
	clk.Advance(90 * time.Second)
	tr.FinalizeSession(context.Background(), id, ReasonCompleted, true)

	rec, _, _ := repo.Find(context.Background(), id)
	// 20 progressed + 10 language + 30 capped interactions + 7 (36/5) + 20 completed
	if rec.EngagementScore != 87 {
		t.Fatalf("expected 87, got %d", rec.EngagementScore)
	}
	if rec.SatisfactionIndicator != "high" {
		t.Fatalf("expected high, got %s", rec.SatisfactionIndicator)
	}
	if rec.TerminationReason != ReasonCompleted {
		t.Fatalf("expected completed-successfully, got %s", rec.TerminationReason)
	}
	if !rec.CompletedSuccessfully {
		t.Fatalf("expected completedSuccessfully")
	}
}

func TestFinalizeSession_ErrorsLowerTheScore(t *testing.T) {
	repo := NewMemoryRepo()
	tr, clk := newTestTracker(t, repo)
	id, _ := tr.StartSession(context.Background(), "+2348011112222", "", nil)

	tr.RecordLanguageSelection(context.Background(), id, "en")
	tr.RecordTransition(context.Background(), id, StateRecordingPrompt, "", "")
	for i := 0; i < 3; i++ {
		tr.RecordInteraction(context.Background(), id, 12, "q", "a", 800, 300, nil)
	}
	tr.TrackError(context.Background(), id, "tts slow", StateAIResponse, "")
	tr.TrackError(context.Background(), id, "recording fetch retried", StateRecordingInProgress, SeverityLow)
	clk.Advance(90 * time.Second)
	tr.FinalizeSession(context.Background(), id, ReasonCompleted, true)

	rec, _, _ := repo.Find(context.Background(), id)
	if rec.EngagementScore != 83 {
		t.Fatalf("expected 83 (87 - 2*2), got %d", rec.EngagementScore)
	}
}

func TestFinalizeSession_ShortCallPenaltyClamped(t *testing.T) {
	repo := NewMemoryRepo()
	tr, clk := newTestTracker(t, repo)
	id, _ := tr.StartSession(context.Background(), "+2348011112222", "", nil)

	tr.RecordTransition(context.Background(), id, StateRecordingPrompt, "", "")
	tr.RecordInteraction(context.Background(), id, 3, "q", "a", 100, 100, nil)
	clk.Advance(10 * time.Second)
	tr.FinalizeSession(context.Background(), id, ReasonUserHangup, false)

	rec, _, _ := repo.Find(context.Background(), id)
	if rec.EngagementScore < 0 || rec.EngagementScore > 100 {
		t.Fatalf("score %d out of bounds", rec.EngagementScore)
	}
	// 20 progressed + 10 interaction + 0 recording - 10 short call = 20
	if rec.EngagementScore != 20 {
		t.Fatalf("expected 20, got %d", rec.EngagementScore)
	}
}

func TestFinalizeSession_Idempotent(t *testing.T) {
	repo := NewMemoryRepo()
	tr, clk := newTestTracker(t, repo)
	id, _ := tr.StartSession(context.Background(), "+2348011112222", "", nil)
	tr.RecordTransition(context.Background(), id, StateWelcome, "", "")

	clk.Advance(40 * time.Second)
	tr.FinalizeSession(context.Background(), id, ReasonUserHangup, false)
	first, _, _ := repo.Find(context.Background(), id)

	clk.Advance(time.Hour)
	tr.FinalizeSession(context.Background(), id, ReasonCompleted, true)
	second, _, _ := repo.Find(context.Background(), id)

	if second.TerminationReason != first.TerminationReason {
		t.Fatalf("second finalize must be a no-op, reason changed to %s", second.TerminationReason)
	}
	if second.EngagementScore != first.EngagementScore {
		t.Fatalf("second finalize must be a no-op, score changed to %d", second.EngagementScore)
	}
	if second.TotalDurationSeconds != first.TotalDurationSeconds {
		t.Fatalf("second finalize must be a no-op, duration changed to %d", second.TotalDurationSeconds)
	}
}

func TestFinalizeSession_SynthesizesFinalTransition(t *testing.T) {
	repo := NewMemoryRepo()
	tr, _ := newTestTracker(t, repo)
	id, _ := tr.StartSession(context.Background(), "+2348011112222", "", nil)
	tr.RecordTransition(context.Background(), id, StatePostAIMenu, "", "")

	tr.FinalizeSession(context.Background(), id, ReasonUserHangup, false)

	rec, _, _ := repo.Find(context.Background(), id)
	last := rec.Transitions[len(rec.Transitions)-1]
	if last.ToState != StateCallEnded {
		t.Fatalf("transition log must end at call-ended, got %s", last.ToState)
	}
	if rec.FinalState != StatePostAIMenu {
		t.Fatalf("final state must freeze the pre-finalize state, got %s", rec.FinalState)
	}
}

func TestFinalizeSession_DurationAccounting(t *testing.T) {
	repo := NewMemoryRepo()
	tr, clk := newTestTracker(t, repo)
	id, _ := tr.StartSession(context.Background(), "+2348011112222", "", nil)

	clk.Advance(5 * time.Second)
	tr.RecordTransition(context.Background(), id, StateWelcome, "", "")
	clk.Advance(7 * time.Second)
	tr.RecordTransition(context.Background(), id, StateRecordingPrompt, "", "")
	clk.Advance(20 * time.Second)
	tr.FinalizeSession(context.Background(), id, ReasonUserHangup, false)

	rec, _, _ := repo.Find(context.Background(), id)
	var sum int64
	for _, x := range rec.Transitions {
		sum += x.DurationMillis
	}
	if limit := int64(rec.TotalDurationSeconds)*1000 + 1000; sum > limit {
		t.Fatalf("transition durations (%dms) exceed call duration (%dms)", sum, limit)
	}
}

func TestIdleTimeout_FinalizesWithTimeoutReason(t *testing.T) {
	repo := NewMemoryRepo()
	reg := NewRegistry(20 * time.Millisecond)
	tr := NewTracker(reg, repo, DefaultScorePolicy(), testLogger())

	id, _ := tr.StartSession(context.Background(), "+2348011112222", "", nil)
	tr.RecordTransition(context.Background(), id, StateWelcome, "", "")

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := tr.ActiveSession(id); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec, _, _ := repo.Find(context.Background(), id)
	if rec.TerminationReason != ReasonTimeout {
		t.Fatalf("expected timeout reason, got %s", rec.TerminationReason)
	}
	if rec.FinalState != StateWelcome {
		t.Fatalf("expected final state welcome, got %s", rec.FinalState)
	}
	if n := len(tr.ActiveSessions()); n != 0 {
		t.Fatalf("expected empty registry, got %d", n)
	}
}

func TestIdleTimeout_ActivityResetsTimer(t *testing.T) {
	repo := NewMemoryRepo()
	reg := NewRegistry(60 * time.Millisecond)
	tr := NewTracker(reg, repo, DefaultScorePolicy(), testLogger())

	id, _ := tr.StartSession(context.Background(), "+2348011112222", "", nil)
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		tr.RecordTransition(context.Background(), id, StateWelcome, "", "")
	}
	if _, ok := tr.ActiveSession(id); !ok {
		t.Fatalf("session should still be alive while activity continues")
	}
	tr.FinalizeSession(context.Background(), id, ReasonUserHangup, false)
}

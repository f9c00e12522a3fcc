package session

import "testing"

func TestScore_EmptyShortCallClampsToZero(t *testing.T) {
	p := DefaultScorePolicy()
	rec := EngagementRecord{FinalState: StateCallInitiated, TotalDurationSeconds: 0}
	if got := p.Score(&rec); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestScore_FullyEngagedCall(t *testing.T) {
	p := DefaultScorePolicy()
	rec := EngagementRecord{
		FinalState:            StateCallEnded,
		SelectedLanguage:      "en",
		TotalAIInteractions:   3,
		TotalRecordingSeconds: 36,
		CompletedSuccessfully: true,
		TotalDurationSeconds:  90,
	}
	// 20 + 10 + 30 (capped) + 7 (36/5 floored) + 20 = 87
	if got := p.Score(&rec); got != 87 {
		t.Fatalf("expected 87, got %d", got)
	}
	if p.Satisfaction(87) != "high" {
		t.Fatalf("expected high satisfaction")
	}
}

func TestScore_ErrorPenalty(t *testing.T) {
	p := DefaultScorePolicy()
	rec := EngagementRecord{
		FinalState:            StateCallEnded,
		SelectedLanguage:      "en",
		TotalAIInteractions:   3,
		TotalRecordingSeconds: 36,
		CompletedSuccessfully: true,
		TotalDurationSeconds:  90,
		Errors: []ErrorRecord{
			{Message: "tts failed"},
			{Message: "recording fetch failed"},
		},
	}
	if got := p.Score(&rec); got != 83 {
		t.Fatalf("expected 83, got %d", got)
	}
}

func TestScore_InteractionCap(t *testing.T) {
	p := DefaultScorePolicy()
	rec := EngagementRecord{
		FinalState:           StatePostAIMenu,
		TotalAIInteractions:  10,
		TotalDurationSeconds: 60,
	}
	// 20 progressed + 30 capped interactions
	if got := p.Score(&rec); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}

func TestScore_RecordingCap(t *testing.T) {
	p := DefaultScorePolicy()
	rec := EngagementRecord{
		FinalState:            StatePostAIMenu,
		TotalRecordingSeconds: 500,
		TotalDurationSeconds:  60,
	}
	// 20 progressed + 20 capped recording points
	if got := p.Score(&rec); got != 40 {
		t.Fatalf("expected 40, got %d", got)
	}
}

func TestScore_ShortCallPenaltyNeverGoesNegative(t *testing.T) {
	p := DefaultScorePolicy()
	rec := EngagementRecord{
		FinalState:            StateAIResponse,
		TotalAIInteractions:   1,
		TotalRecordingSeconds: 5,
		TotalDurationSeconds:  10,
		Errors: []ErrorRecord{
			{}, {}, {}, {}, {}, {}, {}, {}, {}, {},
			{}, {}, {}, {}, {}, {}, {}, {}, {}, {},
		},
	}
	// 20 + 10 + 1 - 40 - 10 clamps at 0
	if got := p.Score(&rec); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestScore_AlwaysBounded(t *testing.T) {
	p := DefaultScorePolicy()
	cases := []EngagementRecord{
		{},
		{FinalState: StateCallEnded, SelectedLanguage: "ha", TotalAIInteractions: 100, TotalRecordingSeconds: 10000, CompletedSuccessfully: true, TotalDurationSeconds: 3600},
		{FinalState: StateCallInitiated, Errors: make([]ErrorRecord, 200)},
	}
	for i, rec := range cases {
		got := p.Score(&rec)
		if got < 0 || got > 100 {
			t.Fatalf("case %d: score %d out of [0,100]", i, got)
		}
	}
}

func TestSatisfaction_Thresholds(t *testing.T) {
	p := DefaultScorePolicy()
	cases := []struct {
		score int
		want  string
	}{
		{0, "low"},
		{39, "low"},
		{40, "medium"},
		{69, "medium"},
		{70, "high"},
		{100, "high"},
	}
	for _, c := range cases {
		if got := p.Satisfaction(c.score); got != c.want {
			t.Fatalf("score %d: expected %q, got %q", c.score, c.want, got)
		}
	}
}

package session

// ScorePolicy computes the 0-100 engagement score and the satisfaction label
// for a record. It is a plain value so deployments can tune weights without
// touching the tracker; the defaults below are the contract the analytics
// dashboards were built against.
type ScorePolicy struct {
	ProgressedPoints int // awarded when the call moved past call-initiated
	LanguagePoints   int // awarded when a language was selected

	PointsPerInteraction int
	InteractionCap       int

	SecondsPerRecordingPoint float64
	RecordingCap             float64

	CompletionPoints int

	ErrorPenalty     int
	ShortCallPenalty int
	ShortCallSeconds int

	HighThreshold   int
	MediumThreshold int
}

func DefaultScorePolicy() ScorePolicy {
	return ScorePolicy{
		ProgressedPoints:         20,
		LanguagePoints:           10,
		PointsPerInteraction:     10,
		InteractionCap:           30,
		SecondsPerRecordingPoint: 5,
		RecordingCap:             20,
		CompletionPoints:         20,
		ErrorPenalty:             2,
		ShortCallPenalty:         10,
		ShortCallSeconds:         30,
		HighThreshold:            70,
		MediumThreshold:          40,
	}
}

// Score is deterministic over the record's accumulated facts and clamped to
// [0,100]. Penalties are individually uncapped; only the final clamp bounds
// the result.
func (p ScorePolicy) Score(r *EngagementRecord) int {
	score := 0

	if r.FinalState != "" && r.FinalState != StateCallInitiated {
		score += p.ProgressedPoints
	} else if r.FinalState == "" && r.CurrentState != StateCallInitiated {
		// Not yet finalized; score the live progression.
		score += p.ProgressedPoints
	}

	if r.SelectedLanguage != "" {
		score += p.LanguagePoints
	}

	interaction := r.TotalAIInteractions * p.PointsPerInteraction
	if interaction > p.InteractionCap {
		interaction = p.InteractionCap
	}
	score += interaction

	recording := r.TotalRecordingSeconds / p.SecondsPerRecordingPoint
	if recording > p.RecordingCap {
		recording = p.RecordingCap
	}
	score += int(recording)

	if r.CompletedSuccessfully {
		score += p.CompletionPoints
	}

	score -= len(r.Errors) * p.ErrorPenalty

	if r.TotalDurationSeconds < p.ShortCallSeconds {
		score -= p.ShortCallPenalty
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Satisfaction maps a score to the low/medium/high indicator.
func (p ScorePolicy) Satisfaction(score int) string {
	switch {
	case score >= p.HighThreshold:
		return "high"
	case score >= p.MediumThreshold:
		return "medium"
	default:
		return "low"
	}
}

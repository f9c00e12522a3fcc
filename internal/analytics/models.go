package analytics

import (
	"time"

	"agrivoice-platform/internal/session"
)

// TimeRange bounds a query by call start time. A nil side is unbounded.

type TimeRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

type OverviewRequest struct {
	Range TimeRange `json:"range"`
}

// Overview is the rollup behind the dashboard's top cards.
type Overview struct {
	TotalSessions int `json:"total_sessions"`

	AverageDurationSeconds float64 `json:"average_duration_seconds"`
	AverageEngagementScore float64 `json:"average_engagement_score"`

	TotalAIInteractions int `json:"total_ai_interactions"`
	TransferredSessions int `json:"transferred_sessions"`
	CompletedSessions   int `json:"completed_sessions"`

	LanguageDistribution    map[string]int `json:"language_distribution"`
	FinalStateDistribution  map[string]int `json:"final_state_distribution"`
	TerminationDistribution map[string]int `json:"termination_distribution"`
	SatisfactionBreakdown   map[string]int `json:"satisfaction_breakdown"`
}

type RecentSessionsRequest struct {
	Page  int    `json:"page"`  // 1-indexed
	Limit int    `json:"limit"` // defaults to 20, capped at 100
	Phone string `json:"phone,omitempty"`
}

type RecentSessions struct {
	Records []session.EngagementRecord `json:"records"`
	Total   int                        `json:"total"`
	Page    int                        `json:"page"`
	Pages   int                        `json:"pages"`
}

// CallPatterns feed the "when do farmers call" dashboard panel.
type CallPatterns struct {
	ByHour    [24]int        `json:"by_hour"`
	ByWeekday map[string]int `json:"by_weekday"`

	RepeatCallers int `json:"repeat_callers"`
	UniqueCallers int `json:"unique_callers"`
}

type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ExportRow is the flat projection written to CSV/XLSX and returned as JSON
// rows. One row per session.
type ExportRow struct {
	SessionID             string  `json:"session_id"`
	PhoneNumber           string  `json:"phone_number"`
	CallStartTime         string  `json:"call_start_time"`
	TotalDurationSeconds  int     `json:"total_duration_seconds"`
	SelectedLanguage      string  `json:"selected_language"`
	FinalState            string  `json:"final_state"`
	TerminationReason     string  `json:"termination_reason"`
	TotalAIInteractions   int     `json:"total_ai_interactions"`
	TotalRecordingSeconds float64 `json:"total_recording_seconds"`
	WasTransferred        bool    `json:"was_transferred_to_agent"`
	Completed             bool    `json:"completed_successfully"`
	ErrorCount            int     `json:"error_count"`
	EngagementScore       int     `json:"engagement_score"`
	Satisfaction          string  `json:"user_satisfaction_indicator"`
}

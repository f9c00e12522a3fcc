package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"agrivoice-platform/internal/session"

	"github.com/xuri/excelize/v2"
)

var exportHeader = []string{
	"session_id", "phone_number", "call_start_time", "total_duration_seconds",
	"selected_language", "final_state", "termination_reason",
	"total_ai_interactions", "total_recording_seconds",
	"was_transferred_to_agent", "completed_successfully", "error_count",
	"engagement_score", "user_satisfaction_indicator",
}

// ExportRows flattens the records in range into one row per session.
func (s *Service) ExportRows(ctx context.Context, rng TimeRange) ([]ExportRow, error) {
	rows, err := s.repo.ListRange(ctx, rng.From, rng.To)
	if err != nil {
		return nil, err
	}
	out := make([]ExportRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, flatten(r))
	}
	return out, nil
}

// ExportCSV renders the range as CSV text.
func (s *Service) ExportCSV(ctx context.Context, rng TimeRange) (string, error) {
	rows, err := s.ExportRows(ctx, rng)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return "", err
	}
	for _, r := range rows {
		if err := w.Write(rowStrings(r)); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// ExportXLSX renders the range as a single-sheet workbook.
func (s *Service) ExportXLSX(ctx context.Context, rng TimeRange) ([]byte, error) {
	rows, err := s.ExportRows(ctx, rng)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sessions"
	f.SetSheetName("Sheet1", sheet)

	for col, h := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	for i, r := range rows {
		for col, v := range rowStrings(r) {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func flatten(r session.EngagementRecord) ExportRow {
	return ExportRow{
		SessionID:             r.SessionID,
		PhoneNumber:           r.PhoneNumber,
		CallStartTime:         r.CallStartTime.Format(time.RFC3339),
		TotalDurationSeconds:  r.TotalDurationSeconds,
		SelectedLanguage:      r.SelectedLanguage,
		FinalState:            string(r.FinalState),
		TerminationReason:     string(r.TerminationReason),
		TotalAIInteractions:   r.TotalAIInteractions,
		TotalRecordingSeconds: r.TotalRecordingSeconds,
		WasTransferred:        r.WasTransferredToAgent,
		Completed:             r.CompletedSuccessfully,
		ErrorCount:            len(r.Errors),
		EngagementScore:       r.EngagementScore,
		Satisfaction:          r.SatisfactionIndicator,
	}
}

func rowStrings(r ExportRow) []string {
	return []string{
		r.SessionID,
		r.PhoneNumber,
		r.CallStartTime,
		strconv.Itoa(r.TotalDurationSeconds),
		r.SelectedLanguage,
		r.FinalState,
		r.TerminationReason,
		strconv.Itoa(r.TotalAIInteractions),
		fmt.Sprintf("%.1f", r.TotalRecordingSeconds),
		strconv.FormatBool(r.WasTransferred),
		strconv.FormatBool(r.Completed),
		strconv.Itoa(r.ErrorCount),
		strconv.Itoa(r.EngagementScore),
		r.Satisfaction,
	}
}

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// NOTE: This repository assumes the following table exists:
//
// CREATE TABLE engagement_records (
//   session_id               TEXT PRIMARY KEY,
//   phone_number             TEXT NOT NULL,
//   call_id                  TEXT NOT NULL DEFAULT '',
//   call_start_time          TIMESTAMPTZ NOT NULL,
//   call_end_time            TIMESTAMPTZ,
//   total_duration_seconds   INT NOT NULL DEFAULT 0,
//   selected_language        TEXT NOT NULL DEFAULT '',
//   language_selection_time  TIMESTAMPTZ,
//   current_state            TEXT NOT NULL,
//   final_state              TEXT NOT NULL DEFAULT '',
//   transitions              JSONB NOT NULL DEFAULT '[]',
//   interactions             JSONB NOT NULL DEFAULT '[]',
//   errors                   JSONB NOT NULL DEFAULT '[]',
//   total_ai_interactions    INT NOT NULL DEFAULT 0,
//   total_recording_seconds  DOUBLE PRECISION NOT NULL DEFAULT 0,
//   average_recording_length DOUBLE PRECISION NOT NULL DEFAULT 0,
//   recording_urls           JSONB NOT NULL DEFAULT '[]',
//   dtmf_inputs              JSONB NOT NULL DEFAULT '[]',
//   was_transferred_to_agent BOOLEAN NOT NULL DEFAULT FALSE,
//   transfer_request_time    TIMESTAMPTZ,
//   completed_successfully   BOOLEAN NOT NULL DEFAULT FALSE,
//   termination_reason       TEXT NOT NULL,
//   termination_time         TIMESTAMPTZ NOT NULL,
//   engagement_score         INT NOT NULL DEFAULT 0,
//   satisfaction_indicator   TEXT NOT NULL DEFAULT 'low'
// );
// CREATE INDEX engagement_records_start_idx ON engagement_records (call_start_time DESC);
// CREATE INDEX engagement_records_phone_idx ON engagement_records (phone_number);
//
// Every mutation below is one UPDATE whose right-hand sides reference the
// stored values, so concurrent same-session writes serialize at the row and
// cannot lose updates. Do not refactor these into read-then-write Go code.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const recordColumns = `
session_id, phone_number, call_id, call_start_time, call_end_time,
total_duration_seconds, selected_language, language_selection_time,
current_state, final_state, transitions, interactions, errors,
total_ai_interactions, total_recording_seconds, average_recording_length,
recording_urls, dtmf_inputs, was_transferred_to_agent, transfer_request_time,
completed_successfully, termination_reason, termination_time,
engagement_score, satisfaction_indicator`

func (p *PostgresRepo) Create(ctx context.Context, rec EngagementRecord) error {
	const q = `
INSERT INTO engagement_records (
  session_id, phone_number, call_id, call_start_time, current_state,
  transitions, interactions, errors, recording_urls, dtmf_inputs,
  termination_reason, termination_time, satisfaction_indicator
) VALUES (
  $1,$2,$3,$4,$5,'[]','[]','[]','[]','[]',$6,$7,$8
)
`
	_, err := p.db.ExecContext(ctx, q,
		rec.SessionID,
		rec.PhoneNumber,
		rec.CallID,
		rec.CallStartTime,
		string(rec.CurrentState),
		string(rec.TerminationReason),
		rec.TerminationTime,
		rec.SatisfactionIndicator,
	)
	return err
}

func (p *PostgresRepo) AppendTransition(ctx context.Context, sessionID string, tr StateTransition, dtmf string) error {
	doc, err := json.Marshal(tr)
	if err != nil {
		return err
	}
	const q = `
UPDATE engagement_records
SET transitions = transitions || $2::jsonb,
    current_state = $3,
    dtmf_inputs = CASE
      WHEN $4 = '' OR dtmf_inputs ? $4 THEN dtmf_inputs
      ELSE dtmf_inputs || to_jsonb($4::text)
    END
WHERE session_id = $1
`
	return p.exec(ctx, q, sessionID, string(doc), string(tr.ToState), dtmf)
}

func (p *PostgresRepo) AppendInteraction(ctx context.Context, sessionID string, in AIInteraction) error {
	doc, err := json.Marshal(in)
	if err != nil {
		return err
	}
	// Counters and the derived average move in the same statement; the
	// right-hand sides see the pre-update values.
	const q = `
UPDATE engagement_records
SET interactions = interactions || $2::jsonb,
    total_ai_interactions = total_ai_interactions + 1,
    total_recording_seconds = total_recording_seconds + $3,
    average_recording_length =
      (total_recording_seconds + $3) / (total_ai_interactions + 1)
WHERE session_id = $1
`
	return p.exec(ctx, q, sessionID, string(doc), in.UserRecordingSeconds)
}

func (p *PostgresRepo) AppendError(ctx context.Context, sessionID string, e ErrorRecord) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return err
	}
	const q = `
UPDATE engagement_records
SET errors = errors || $2::jsonb
WHERE session_id = $1
`
	return p.exec(ctx, q, sessionID, string(doc))
}

func (p *PostgresRepo) AppendRecordingURL(ctx context.Context, sessionID, url string) error {
	const q = `
UPDATE engagement_records
SET recording_urls = recording_urls || to_jsonb($2::text)
WHERE session_id = $1
`
	return p.exec(ctx, q, sessionID, url)
}

func (p *PostgresRepo) SetLanguage(ctx context.Context, sessionID, language string, at time.Time) error {
	const q = `
UPDATE engagement_records
SET selected_language = $2, language_selection_time = $3
WHERE session_id = $1
`
	return p.exec(ctx, q, sessionID, language, at)
}

func (p *PostgresRepo) SetTransferRequested(ctx context.Context, sessionID string, at time.Time) error {
	const q = `
UPDATE engagement_records
SET was_transferred_to_agent = TRUE, transfer_request_time = $2
WHERE session_id = $1
`
	return p.exec(ctx, q, sessionID, at)
}

func (p *PostgresRepo) SetScore(ctx context.Context, sessionID string, score int, satisfaction string) error {
	const q = `
UPDATE engagement_records
SET engagement_score = $2, satisfaction_indicator = $3
WHERE session_id = $1
`
	return p.exec(ctx, q, sessionID, score, satisfaction)
}

func (p *PostgresRepo) Finalize(ctx context.Context, sessionID string, fin Finalization) error {
	const q = `
UPDATE engagement_records
SET call_end_time = $2,
    total_duration_seconds = $3,
    final_state = $4,
    termination_reason = $5,
    termination_time = $6,
    completed_successfully = $7,
    engagement_score = $8,
    satisfaction_indicator = $9
WHERE session_id = $1
`
	return p.exec(ctx, q, sessionID,
		fin.CallEndTime,
		fin.TotalDurationSeconds,
		string(fin.FinalState),
		string(fin.TerminationReason),
		fin.TerminationTime,
		fin.Completed,
		fin.EngagementScore,
		fin.SatisfactionIndicator,
	)
}

func (p *PostgresRepo) Delete(ctx context.Context, sessionID string) error {
	const q = `DELETE FROM engagement_records WHERE session_id = $1`
	_, err := p.db.ExecContext(ctx, q, sessionID)
	return err
}

func (p *PostgresRepo) Find(ctx context.Context, sessionID string) (EngagementRecord, bool, error) {
	q := `SELECT ` + recordColumns + ` FROM engagement_records WHERE session_id = $1`
	rec, err := scanRecord(p.db.QueryRowContext(ctx, q, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EngagementRecord{}, false, nil
		}
		return EngagementRecord{}, false, err
	}
	return rec, true, nil
}

func (p *PostgresRepo) ListRange(ctx context.Context, from, to *time.Time) ([]EngagementRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM engagement_records WHERE 1=1`
	args := make([]any, 0, 2)
	if from != nil {
		args = append(args, *from)
		q += fmt.Sprintf(" AND call_start_time >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		q += fmt.Sprintf(" AND call_start_time <= $%d", len(args))
	}
	q += " ORDER BY call_start_time ASC"

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]EngagementRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresRepo) ListRecent(ctx context.Context, offset, limit int, phoneFilter string) ([]EngagementRecord, int, error) {
	q := `SELECT count(*) OVER() AS total, ` + recordColumns + ` FROM engagement_records`
	args := make([]any, 0, 3)
	if phoneFilter != "" {
		args = append(args, "%"+phoneFilter+"%")
		q += fmt.Sprintf(" WHERE phone_number LIKE $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY call_start_time DESC LIMIT $%d", len(args))
	args = append(args, offset)
	q += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	total := 0
	out := make([]EngagementRecord, 0, limit)
	for rows.Next() {
		rec, n, err := scanRecordWithTotal(rows)
		if err != nil {
			return nil, 0, err
		}
		total = n
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// The window count rides on result rows. An offset past the last row
	// returns none, so count separately to keep the total honest.
	if len(out) == 0 {
		cq := `SELECT count(*) FROM engagement_records`
		cargs := make([]any, 0, 1)
		if phoneFilter != "" {
			cargs = append(cargs, "%"+phoneFilter+"%")
			cq += " WHERE phone_number LIKE $1"
		}
		if err := p.db.QueryRowContext(ctx, cq, cargs...).Scan(&total); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

func (p *PostgresRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	const q = `
DELETE FROM engagement_records
WHERE call_end_time IS NOT NULL AND call_start_time < $1
`
	res, err := p.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *PostgresRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := p.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (EngagementRecord, error) {
	var (
		rec                                        EngagementRecord
		currentState, finalState, reason           string
		transitionsRaw, interactionsRaw, errorsRaw []byte
		recordingURLsRaw, dtmfRaw                  []byte
		callEnd, langTime, transferTime            sql.NullTime
	)
	err := row.Scan(
		&rec.SessionID, &rec.PhoneNumber, &rec.CallID, &rec.CallStartTime, &callEnd,
		&rec.TotalDurationSeconds, &rec.SelectedLanguage, &langTime,
		&currentState, &finalState, &transitionsRaw, &interactionsRaw, &errorsRaw,
		&rec.TotalAIInteractions, &rec.TotalRecordingSeconds, &rec.AverageRecordingLength,
		&recordingURLsRaw, &dtmfRaw, &rec.WasTransferredToAgent, &transferTime,
		&rec.CompletedSuccessfully, &reason, &rec.TerminationTime,
		&rec.EngagementScore, &rec.SatisfactionIndicator,
	)
	if err != nil {
		return EngagementRecord{}, err
	}
	return assembleRecord(rec, currentState, finalState, reason,
		transitionsRaw, interactionsRaw, errorsRaw, recordingURLsRaw, dtmfRaw,
		callEnd, langTime, transferTime)
}

func scanRecordWithTotal(row rowScanner) (EngagementRecord, int, error) {
	var (
		total                                      int
		rec                                        EngagementRecord
		currentState, finalState, reason           string
		transitionsRaw, interactionsRaw, errorsRaw []byte
		recordingURLsRaw, dtmfRaw                  []byte
		callEnd, langTime, transferTime            sql.NullTime
	)
	err := row.Scan(
		&total,
		&rec.SessionID, &rec.PhoneNumber, &rec.CallID, &rec.CallStartTime, &callEnd,
		&rec.TotalDurationSeconds, &rec.SelectedLanguage, &langTime,
		&currentState, &finalState, &transitionsRaw, &interactionsRaw, &errorsRaw,
		&rec.TotalAIInteractions, &rec.TotalRecordingSeconds, &rec.AverageRecordingLength,
		&recordingURLsRaw, &dtmfRaw, &rec.WasTransferredToAgent, &transferTime,
		&rec.CompletedSuccessfully, &reason, &rec.TerminationTime,
		&rec.EngagementScore, &rec.SatisfactionIndicator,
	)
	if err != nil {
		return EngagementRecord{}, 0, err
	}
	out, err := assembleRecord(rec, currentState, finalState, reason,
		transitionsRaw, interactionsRaw, errorsRaw, recordingURLsRaw, dtmfRaw,
		callEnd, langTime, transferTime)
	return out, total, err
}

func assembleRecord(
	rec EngagementRecord,
	currentState, finalState, reason string,
	transitionsRaw, interactionsRaw, errorsRaw, recordingURLsRaw, dtmfRaw []byte,
	callEnd, langTime, transferTime sql.NullTime,
) (EngagementRecord, error) {
	rec.CurrentState = IVRState(currentState)
	rec.FinalState = IVRState(finalState)
	rec.TerminationReason = TerminationReason(reason)
	if callEnd.Valid {
		t := callEnd.Time
		rec.CallEndTime = &t
	}
	if langTime.Valid {
		t := langTime.Time
		rec.LanguageSelectionTime = &t
	}
	if transferTime.Valid {
		t := transferTime.Time
		rec.TransferRequestTime = &t
	}
	if err := json.Unmarshal(transitionsRaw, &rec.Transitions); err != nil {
		return EngagementRecord{}, err
	}
	if err := json.Unmarshal(interactionsRaw, &rec.Interactions); err != nil {
		return EngagementRecord{}, err
	}
	if err := json.Unmarshal(errorsRaw, &rec.Errors); err != nil {
		return EngagementRecord{}, err
	}
	if err := json.Unmarshal(recordingURLsRaw, &rec.RecordingURLs); err != nil {
		return EngagementRecord{}, err
	}
	if err := json.Unmarshal(dtmfRaw, &rec.DTMFInputs); err != nil {
		return EngagementRecord{}, err
	}
	return rec, nil
}

package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("session: record not found")
	ErrInvalidArgument = errors.New("session: invalid argument")
)

// Repository is the persistence contract for engagement records.
//
// Every mutation is a single atomic storage operation (append, increment,
// set) keyed by session_id. There is deliberately no read-modify-write
// surface: concurrent same-session writes (a late webhook retry racing a
// timeout) must not lose updates, and the storage layer is where that is
// guaranteed.
type Repository interface {
	// Create inserts the record shell for a new call. A failure here is
	// fatal to session start.
	Create(ctx context.Context, rec EngagementRecord) error

	// AppendTransition appends to the transition log, mirrors the live
	// state, and adds dtmf to the distinct input set when non-empty.
	AppendTransition(ctx context.Context, sessionID string, tr StateTransition, dtmf string) error

	// AppendInteraction appends to the interaction log and bumps the
	// interaction counters and derived average in the same atomic write.
	AppendInteraction(ctx context.Context, sessionID string, in AIInteraction) error

	AppendError(ctx context.Context, sessionID string, e ErrorRecord) error
	AppendRecordingURL(ctx context.Context, sessionID, url string) error

	SetLanguage(ctx context.Context, sessionID, language string, at time.Time) error
	SetTransferRequested(ctx context.Context, sessionID string, at time.Time) error
	SetScore(ctx context.Context, sessionID string, score int, satisfaction string) error

	// Finalize writes the end-of-call fields. Write-once semantics are the
	// tracker's job (it only finalizes sessions it removed from the live
	// registry); the repository just persists.
	Finalize(ctx context.Context, sessionID string, fin Finalization) error

	// Delete removes the record created for sessionID. Used only to roll
	// back a failed session start.
	Delete(ctx context.Context, sessionID string) error

	Find(ctx context.Context, sessionID string) (EngagementRecord, bool, error)

	// ListRange returns records whose call_start_time falls in [from, to].
	// A nil bound is unbounded on that side.
	ListRange(ctx context.Context, from, to *time.Time) ([]EngagementRecord, error)

	// ListRecent pages records reverse-chronologically by call_start_time.
	// phoneFilter, when non-empty, restricts to that caller.
	ListRecent(ctx context.Context, offset, limit int, phoneFilter string) ([]EngagementRecord, int, error)

	// DeleteOlderThan removes finalized records with call_start_time before
	// the cutoff and reports how many went away.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Finalization carries the write-once end-of-call fields.
type Finalization struct {
	CallEndTime          time.Time
	TotalDurationSeconds int
	FinalState           IVRState
	TerminationReason    TerminationReason
	TerminationTime      time.Time
	Completed            bool

	EngagementScore       int
	SatisfactionIndicator string
}

package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records through caller-facing APIs.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogCleanup records a retention cleanup run and how many records it removed.
func (s *Service) LogCleanup(ctx context.Context, actorUserID, actorRole, ip string, olderThan time.Time, removed int) error {
	return s.Append(ctx, Event{
		Type:        EventTypeCleanup,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		Message:     fmt.Sprintf("removed %d records finalized before %s", removed, olderThan.Format(time.RFC3339)),
	})
}

// LogExport records a bulk data export.
func (s *Service) LogExport(ctx context.Context, actorUserID, actorRole, ip, format string, rows int) error {
	return s.Append(ctx, Event{
		Type:        EventTypeExport,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		Message:     fmt.Sprintf("exported %d rows as %s", rows, format),
	})
}

// LogAgentPoolChange records adding or removing an agent dial target.
func (s *Service) LogAgentPoolChange(ctx context.Context, actorUserID, actorRole, ip, agent, action string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeAgentPool,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		Agent:       agent,
		Message:     action,
	})
}

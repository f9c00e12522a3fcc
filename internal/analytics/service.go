package analytics

import (
	"context"
	"errors"
	"time"

	"agrivoice-platform/internal/session"
)

var ErrInvalidRequest = errors.New("analytics: invalid request")

// Repository is the read-side contract analytics needs from session storage.
// session.MemoryRepo and session.PostgresRepo both satisfy it.
type Repository interface {
	ListRange(ctx context.Context, from, to *time.Time) ([]session.EngagementRecord, error)
	ListRecent(ctx context.Context, offset, limit int, phoneFilter string) ([]session.EngagementRecord, int, error)
	Find(ctx context.Context, sessionID string) (session.EngagementRecord, bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// LiveSource exposes live session snapshots; the Tracker satisfies it.
type LiveSource interface {
	ActiveSessions() []session.CallSession
}

type Service struct {
	repo Repository
	live LiveSource
}

func NewService(repo Repository, live LiveSource) *Service {
	return &Service{repo: repo, live: live}
}

func (s *Service) Overview(ctx context.Context, req OverviewRequest) (Overview, error) {
	if s.repo == nil {
		return Overview{}, errors.New("analytics: repository not configured")
	}
	if req.Range.From != nil && req.Range.To != nil && req.Range.To.Before(*req.Range.From) {
		return Overview{}, ErrInvalidRequest
	}

	rows, err := s.repo.ListRange(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return Overview{}, err
	}

	out := Overview{
		LanguageDistribution:    map[string]int{},
		FinalStateDistribution:  map[string]int{},
		TerminationDistribution: map[string]int{},
		SatisfactionBreakdown:   map[string]int{},
	}
	var durationSum, scoreSum int
	for _, r := range rows {
		out.TotalSessions++
		durationSum += r.TotalDurationSeconds
		scoreSum += r.EngagementScore
		out.TotalAIInteractions += r.TotalAIInteractions
		if r.WasTransferredToAgent {
			out.TransferredSessions++
		}
		if r.CompletedSuccessfully {
			out.CompletedSessions++
		}

		lang := r.SelectedLanguage
		if lang == "" {
			lang = "unset"
		}
		out.LanguageDistribution[lang]++
		if r.FinalState != "" {
			out.FinalStateDistribution[string(r.FinalState)]++
		}
		out.TerminationDistribution[string(r.TerminationReason)]++
		if r.SatisfactionIndicator != "" {
			out.SatisfactionBreakdown[r.SatisfactionIndicator]++
		}
	}
	if out.TotalSessions > 0 {
		out.AverageDurationSeconds = float64(durationSum) / float64(out.TotalSessions)
		out.AverageEngagementScore = float64(scoreSum) / float64(out.TotalSessions)
	}
	return out, nil
}

func (s *Service) RecentSessions(ctx context.Context, req RecentSessionsRequest) (RecentSessions, error) {
	if s.repo == nil {
		return RecentSessions{}, errors.New("analytics: repository not configured")
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = 20
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	offset := (req.Page - 1) * req.Limit
	rows, total, err := s.repo.ListRecent(ctx, offset, req.Limit, req.Phone)
	if err != nil {
		return RecentSessions{}, err
	}

	pages := total / req.Limit
	if total%req.Limit != 0 {
		pages++
	}
	return RecentSessions{Records: rows, Total: total, Page: req.Page, Pages: pages}, nil
}

func (s *Service) SessionDetail(ctx context.Context, sessionID string) (session.EngagementRecord, bool, error) {
	if sessionID == "" {
		return session.EngagementRecord{}, false, ErrInvalidRequest
	}
	return s.repo.Find(ctx, sessionID)
}

func (s *Service) ActiveSessions() []session.CallSession {
	if s.live == nil {
		return nil
	}
	return s.live.ActiveSessions()
}

// Patterns computes time-of-day and repeat-caller rollups over a range.
func (s *Service) Patterns(ctx context.Context, req OverviewRequest) (CallPatterns, error) {
	rows, err := s.repo.ListRange(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return CallPatterns{}, err
	}

	out := CallPatterns{ByWeekday: map[string]int{}}
	callers := map[string]int{}
	for _, r := range rows {
		out.ByHour[r.CallStartTime.Hour()]++
		out.ByWeekday[r.CallStartTime.Weekday().String()]++
		callers[r.PhoneNumber]++
	}
	out.UniqueCallers = len(callers)
	for _, n := range callers {
		if n > 1 {
			out.RepeatCallers++
		}
	}
	return out, nil
}

// Cleanup deletes finalized records older than the cutoff and reports the
// number removed.
func (s *Service) Cleanup(ctx context.Context, olderThan time.Duration, now time.Time) (int, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRequest
	}
	return s.repo.DeleteOlderThan(ctx, now.Add(-olderThan))
}

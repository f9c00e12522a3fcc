package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local development.
// Mutations hold one mutex for their full duration, which gives the same
// no-lost-update property the Postgres implementation gets from
// single-statement writes.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]*EngagementRecord

	// FailWrites makes every mutation fail; used to exercise the
	// log-and-swallow paths.
	FailWrites error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[string]*EngagementRecord)}
}

func (m *MemoryRepo) Create(ctx context.Context, rec EngagementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	cp := rec
	m.records[rec.SessionID] = &cp
	return nil
}

func (m *MemoryRepo) AppendTransition(ctx context.Context, sessionID string, tr StateTransition, dtmf string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	r, ok := m.records[sessionID]
	if !ok {
		return ErrNotFound
	}
	r.Transitions = append(r.Transitions, tr)
	r.CurrentState = tr.ToState
	if dtmf != "" && !r.HasDTMFInput(dtmf) {
		r.DTMFInputs = append(r.DTMFInputs, dtmf)
	}
	return nil
}

func (m *MemoryRepo) AppendInteraction(ctx context.Context, sessionID string, in AIInteraction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	r, ok := m.records[sessionID]
	if !ok {
		return ErrNotFound
	}
	r.Interactions = append(r.Interactions, in)
	r.TotalAIInteractions++
	r.TotalRecordingSeconds += in.UserRecordingSeconds
	r.AverageRecordingLength = r.TotalRecordingSeconds / float64(r.TotalAIInteractions)
	return nil
}

func (m *MemoryRepo) AppendError(ctx context.Context, sessionID string, e ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	r, ok := m.records[sessionID]
	if !ok {
		return ErrNotFound
	}
	r.Errors = append(r.Errors, e)
	return nil
}

func (m *MemoryRepo) AppendRecordingURL(ctx context.Context, sessionID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	r, ok := m.records[sessionID]
	if !ok {
		return ErrNotFound
	}
	r.RecordingURLs = append(r.RecordingURLs, url)
	return nil
}

func (m *MemoryRepo) SetLanguage(ctx context.Context, sessionID, language string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	r, ok := m.records[sessionID]
	if !ok {
		return ErrNotFound
	}
	r.SelectedLanguage = language
	t := at
	r.LanguageSelectionTime = &t
	return nil
}

func (m *MemoryRepo) SetTransferRequested(ctx context.Context, sessionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	r, ok := m.records[sessionID]
	if !ok {
		return ErrNotFound
	}
	r.WasTransferredToAgent = true
	t := at
	r.TransferRequestTime = &t
	return nil
}

func (m *MemoryRepo) SetScore(ctx context.Context, sessionID string, score int, satisfaction string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	r, ok := m.records[sessionID]
	if !ok {
		return ErrNotFound
	}
	r.EngagementScore = score
	r.SatisfactionIndicator = satisfaction
	return nil
}

func (m *MemoryRepo) Finalize(ctx context.Context, sessionID string, fin Finalization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	r, ok := m.records[sessionID]
	if !ok {
		return ErrNotFound
	}
	end := fin.CallEndTime
	r.CallEndTime = &end
	r.TotalDurationSeconds = fin.TotalDurationSeconds
	r.FinalState = fin.FinalState
	r.TerminationReason = fin.TerminationReason
	r.TerminationTime = fin.TerminationTime
	r.CompletedSuccessfully = fin.Completed
	r.EngagementScore = fin.EngagementScore
	r.SatisfactionIndicator = fin.SatisfactionIndicator
	return nil
}

func (m *MemoryRepo) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sessionID)
	return nil
}

func (m *MemoryRepo) Find(ctx context.Context, sessionID string) (EngagementRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[sessionID]
	if !ok {
		return EngagementRecord{}, false, nil
	}
	return cloneRecord(r), true, nil
}

func (m *MemoryRepo) ListRange(ctx context.Context, from, to *time.Time) ([]EngagementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EngagementRecord, 0)
	for _, r := range m.records {
		if from != nil && r.CallStartTime.Before(*from) {
			continue
		}
		if to != nil && r.CallStartTime.After(*to) {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CallStartTime.Before(out[j].CallStartTime) })
	return out, nil
}

func (m *MemoryRepo) ListRecent(ctx context.Context, offset, limit int, phoneFilter string) ([]EngagementRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]EngagementRecord, 0, len(m.records))
	for _, r := range m.records {
		if phoneFilter != "" && !strings.Contains(r.PhoneNumber, phoneFilter) {
			continue
		}
		all = append(all, cloneRecord(r))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CallStartTime.After(all[j].CallStartTime) })
	total := len(all)
	if offset >= total {
		return []EngagementRecord{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *MemoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, r := range m.records {
		if r.IsFinalized() && r.CallStartTime.Before(cutoff) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func cloneRecord(r *EngagementRecord) EngagementRecord {
	cp := *r
	cp.Transitions = append([]StateTransition(nil), r.Transitions...)
	cp.Interactions = append([]AIInteraction(nil), r.Interactions...)
	cp.Errors = append([]ErrorRecord(nil), r.Errors...)
	cp.RecordingURLs = append([]string(nil), r.RecordingURLs...)
	cp.DTMFInputs = append([]string(nil), r.DTMFInputs...)
	return cp
}

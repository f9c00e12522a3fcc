package session

import (
	"sync"
	"time"
)

// Registry owns the live call sessions and their idle-timeout timers.
//
// It is an explicit state container rather than package-level maps so tests
// and multiple instances stay independent. All mutation of a live
// CallSession goes through registry methods under one mutex; that is what
// gives per-session single-writer semantics on a multi-threaded runtime.
//
// Timer invariant: at most one timer per session. Touch cancels and
// reschedules under the lock, so two timers for one session never coexist.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*CallSession
	timers   map[string]*time.Timer

	idleTimeout time.Duration

	// onIdle is invoked (on the timer goroutine) when a session sees no
	// activity for idleTimeout. Set once at wiring time, before any session
	// is registered.
	onIdle func(sessionID string)
}

func NewRegistry(idleTimeout time.Duration) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Minute
	}
	return &Registry{
		sessions:    make(map[string]*CallSession),
		timers:      make(map[string]*time.Timer),
		idleTimeout: idleTimeout,
	}
}

// OnIdle registers the timeout callback. Typically the tracker's
// timeout-finalize path.
func (r *Registry) OnIdle(fn func(sessionID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onIdle = fn
}

// Put registers a live session and arms its idle timer.
func (r *Registry) Put(s *CallSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.SessionID] = s
	r.armLocked(s.SessionID)
}

// Get returns a snapshot of the live session.
func (r *Registry) Get(sessionID string) (CallSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return CallSession{}, false
	}
	return *s, true
}

// List returns snapshots of all live sessions.
func (r *Registry) List() []CallSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Advance moves the session to toState and returns the state it left and the
// milliseconds spent there. The idle timer is reset.
func (r *Registry) Advance(sessionID string, toState IVRState, now time.Time) (from IVRState, heldMillis int64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, found := r.sessions[sessionID]
	if !found {
		return "", 0, false
	}
	from = s.CurrentState
	heldMillis = now.Sub(s.StateStartTime).Milliseconds()
	s.CurrentState = toState
	s.StateStartTime = now
	r.armLocked(sessionID)
	return from, heldMillis, true
}

// SetLanguage records the caller's language choice. Last write wins.
func (r *Registry) SetLanguage(sessionID, language string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	s.SelectedLanguage = language
	r.armLocked(sessionID)
	return true
}

// Touch resets the idle timer without mutating session state.
func (r *Registry) Touch(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return false
	}
	r.armLocked(sessionID)
	return true
}

// Remove drops the session and stops its timer. Returns the final snapshot.
// The first caller wins; a concurrent explicit finalize and a firing timeout
// both funnel through here, and only one sees ok=true.
func (r *Registry) Remove(sessionID string) (CallSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return CallSession{}, false
	}
	delete(r.sessions, sessionID)
	if t, ok := r.timers[sessionID]; ok {
		t.Stop()
		delete(r.timers, sessionID)
	}
	return *s, true
}

func (r *Registry) armLocked(sessionID string) {
	if t, ok := r.timers[sessionID]; ok {
		t.Stop()
	}
	r.timers[sessionID] = time.AfterFunc(r.idleTimeout, func() {
		r.fire(sessionID)
	})
}

func (r *Registry) fire(sessionID string) {
	r.mu.Lock()
	fn := r.onIdle
	_, live := r.sessions[sessionID]
	r.mu.Unlock()
	// A timer that lost the race to Stop finds the session gone and does
	// nothing; finalization stays effectively-once.
	if !live || fn == nil {
		return
	}
	fn(sessionID)
}

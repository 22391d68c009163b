package router

import (
	"sync"
	"time"
)

// handshakeTracker tracks sessions that have not completed connect. The
// reaper closes those older than Config.ConnectTimeout.
type handshakeTracker struct {
	mu       sync.Mutex
	sessions map[*session]time.Time
}

func newHandshakeTracker() *handshakeTracker {
	return &handshakeTracker{sessions: make(map[*session]time.Time)}
}

// Add registers s with the current time.
func (t *handshakeTracker) Add(s *session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[s] = time.Now()
}

// Remove deregisters s. Safe to call on absent sessions.
func (t *handshakeTracker) Remove(s *session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, s)
}

// CloseStale closes and removes the sessions older than maxAge and
// returns how many it closed.
func (t *handshakeTracker) CloseStale(maxAge time.Duration) int {
	t.mu.Lock()
	cutoff := time.Now().Add(-maxAge)
	var stale []*session
	for s, added := range t.sessions {
		if added.Before(cutoff) {
			stale = append(stale, s)
			delete(t.sessions, s)
		}
	}
	t.mu.Unlock()

	for _, s := range stale {
		_ = s.Close()
	}
	return len(stale)
}

// Len returns the number of tracked sessions.
func (t *handshakeTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

package auth

import (
	"sync"
	"time"
)

// DefaultStateTTL bounds how long a consent screen may stay open.
const DefaultStateTTL = 10 * time.Minute

type pendingState struct {
	state     string
	expiresAt time.Time
}

// StateStore holds one pending authorization state per session.
type StateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	pending map[string]pendingState
}

// NewStateStore creates a StateStore; ttl <= 0 uses [DefaultStateTTL].
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{ttl: ttl, now: time.Now, pending: make(map[string]pendingState)}
}

// Issue records state for sessionID, discarding any earlier pending state.
func (s *StateStore) Issue(sessionID, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[sessionID] = pendingState{state: state, expiresAt: s.now().Add(s.ttl)}
}

// Consume atomically returns and removes the pending state. Expired states are absent.
func (s *StateStore) Consume(sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[sessionID]
	if !ok {
		return "", false
	}
	delete(s.pending, sessionID)

	if s.now().After(p.expiresAt) {
		return "", false
	}
	return p.state, true
}

// Cleanup drops expired states and returns how many were removed.
func (s *StateStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, p := range s.pending {
		if now.After(p.expiresAt) {
			delete(s.pending, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of pending states, expired or not.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

package credentials

import (
	"context"
	"sync"
)

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]*Credential
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]*Credential)}
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, cred *Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[sessionID] = cred.Clone()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*Credential, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[sessionID]
	if !ok {
		return nil, false, nil
	}
	return cred.Clone(), true, nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, sessionID)
	return nil
}

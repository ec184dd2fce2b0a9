package session

import (
	"context"
	"sync"

	"github.com/docintel/docintel/agent"
)

// MemoryStore keeps session state in process memory. It is the default
// store for single-instance deployments and for tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, sessionID string) (agent.State, error) {
	s.mu.RLock()
	data, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return agent.State{}, ErrNotFound
	}
	return DecodeState(data)
}

// Save implements Store. State is stored in encoded form so callers never
// share live slices with the store.
func (s *MemoryStore) Save(ctx context.Context, sessionID string, state agent.State) error {
	data, err := EncodeState(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[sessionID] = data
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Package session persists per-session agent state and serializes
// concurrent turns on the same session.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/docintel/docintel/agent"
)

// ErrNotFound is returned when no state exists for a session id.
var ErrNotFound = errors.New("session not found")

// Store persists agent state keyed by session id.
type Store interface {
	// Load returns the state for a session, or ErrNotFound.
	Load(ctx context.Context, sessionID string) (agent.State, error)

	// Save writes the state for a session, replacing any prior value.
	Save(ctx context.Context, sessionID string, state agent.State) error

	// Delete removes a session. Deleting an absent session is not an error.
	Delete(ctx context.Context, sessionID string) error
}

// Manager wraps a Store with per-session locking so that concurrent turns
// on the same session run one at a time. Turns on distinct sessions do not
// contend.
type Manager struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, locks: make(map[string]*sync.Mutex)}
}

func (m *Manager) lockFor(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

// Update runs fn over the session's current state while holding the
// session lock, then persists the result. A missing session starts from
// the zero state. Per-turn context is stripped before persisting; only
// durable state reaches the store.
func (m *Manager) Update(ctx context.Context, sessionID string, fn func(agent.State) (agent.State, error)) (agent.State, error) {
	l := m.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	state, err := m.store.Load(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return agent.State{}, err
	}

	next, err := fn(state)
	if err != nil {
		return agent.State{}, err
	}

	next.AdHocContext = ""
	if err := m.store.Save(ctx, sessionID, next); err != nil {
		return agent.State{}, err
	}
	return next, nil
}

// Peek returns the session's current state without locking for update.
func (m *Manager) Peek(ctx context.Context, sessionID string) (agent.State, error) {
	return m.store.Load(ctx, sessionID)
}

// Reset deletes the session's state.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	l := m.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()
	return m.store.Delete(ctx, sessionID)
}

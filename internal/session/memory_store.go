package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	active map[int64]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		active: make(map[int64]*Session),
	}
}

// Get returns a copy of the user's session.
func (m *MemoryStore) Get(_ context.Context, userID int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.active[userID]; ok {
		return s.Clone(), nil
	}
	return nil, nil
}

// Put stores a copy of the session.
func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[s.UserID] = s.Clone()
	return nil
}

// Delete removes the user's session.
func (m *MemoryStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[userID]; ok {
		delete(m.active, userID)
		slog.Debug("Workflow session removed", "user_id", userID)
	}
	return nil
}

// DeleteIdle removes sessions last updated before the given time.
func (m *MemoryStore) DeleteIdle(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.active {
		if s.UpdatedAt.Before(before) {
			delete(m.active, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

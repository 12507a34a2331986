package backlog

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Task
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory backlog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Task)}
}

// Get returns a copy of the session's tasks.
func (s *MemoryStore) Get(_ context.Context, sessionID string) ([]Task, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTasks(s.sessions[sessionID]), nil
}

// Update replaces the session's tasks with a copy of tasks.
func (s *MemoryStore) Update(_ context.Context, sessionID string, tasks []Task) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = cloneTasks(tasks)
	return nil
}

// ListSessions returns the IDs of all sessions with a stored backlog, sorted.
func (s *MemoryStore) ListSessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

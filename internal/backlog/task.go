// Package backlog holds the per-session task list ("todos") that the autopilot
// appends follow-up work to. The store is replaced as a whole list on every
// write, so callers read, modify a copy, and write back.
package backlog

import (
	"context"
	"errors"
	"time"
)

// ErrSessionRequired is returned when a store operation is given an empty session ID.
var ErrSessionRequired = errors.New("session id is required")

// Status is the lifecycle state of a backlog task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Priority orders tasks within a session. Autonomous tasks are always low.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Task is a single backlog entry.
type Task struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Status    Status    `json:"status"`
	Priority  Priority  `json:"priority"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Store is the persistence contract for session backlogs.
type Store interface {
	// Get returns the ordered task list for a session. Unknown sessions yield an empty list.
	Get(ctx context.Context, sessionID string) ([]Task, error)
	// Update replaces the whole task list for a session.
	Update(ctx context.Context, sessionID string, tasks []Task) error
}

func cloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return []Task{}
	}
	out := make([]Task, len(tasks))
	copy(out, tasks)
	return out
}

// Package autopilot decides whether a finished tool run may enqueue a
// follow-up task on its own, and enqueues it when allowed.
//
// Every decision passes through Gate, an ordered list of fail-closed checks.
// Scheduler appends the follow-up to the session backlog, Dispatcher runs
// scheduling off the caller's path, and HealthMonitor aggregates the
// resulting telemetry for RollbackPolicy.
package autopilot

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alekspetrov/autonomy/internal/backlog"
)

const (
	// DefaultMaxDepth bounds the length of an autonomous chain.
	DefaultMaxDepth = 3
	// DefaultMaxAutoTasks bounds the number of auto-* tasks in one session backlog.
	DefaultMaxAutoTasks = 5

	autoIDPrefix   = "auto-"
	unknownTaskRef = "unknown"
)

var autoIDPattern = regexp.MustCompile(`^auto-\d+$`)

// RunContext describes one tool completion that may continue autonomously.
// It is built per call and never stored.
type RunContext struct {
	SessionID       string `json:"sessionID"`
	CurrentTaskID   string `json:"currentTaskId,omitempty"`
	RequireApproval bool   `json:"requireApproval,omitempty"`
	AutoTaskDepth   int    `json:"autoTaskDepth,omitempty"`
}

// Limits caps autonomous continuation.
type Limits struct {
	MaxDepth     int `yaml:"max_depth"`
	MaxAutoTasks int `yaml:"max_auto_tasks"`
}

// DefaultLimits returns the standard loop-prevention limits.
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:     DefaultMaxDepth,
		MaxAutoTasks: DefaultMaxAutoTasks,
	}
}

// withDefaults fills zero or negative limits.
func (l Limits) withDefaults() Limits {
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxDepth
	}
	if l.MaxAutoTasks <= 0 {
		l.MaxAutoTasks = DefaultMaxAutoTasks
	}
	return l
}

// BacklogStore is the session backlog the autopilot reads and appends to.
// Update replaces the whole list.
type BacklogStore interface {
	Get(ctx context.Context, sessionID string) ([]backlog.Task, error)
	Update(ctx context.Context, sessionID string, tasks []backlog.Task) error
}

// FlagSource reports whether autonomous continuation is switched on.
type FlagSource interface {
	IsAutonomyContinueEnabled() bool
}

// FlagSwitch is a FlagSource that can also be flipped.
type FlagSwitch interface {
	FlagSource
	SetAutonomyContinueEnabled(enabled bool, reason string) bool
}

// IsAutoTaskID reports whether id names an autonomously scheduled task.
func IsAutoTaskID(id string) bool {
	return autoIDPattern.MatchString(id)
}

// CountAutoTasks returns how many tasks in the list were scheduled autonomously.
func CountAutoTasks(tasks []backlog.Task) int {
	n := 0
	for _, t := range tasks {
		if IsAutoTaskID(t.ID) {
			n++
		}
	}
	return n
}

// DefaultContent is the follow-up text used when the caller supplies none.
func DefaultContent(currentTaskID string) string {
	ref := strings.TrimSpace(currentTaskID)
	if ref == "" {
		ref = unknownTaskRef
	}
	return "Auto continuation from " + ref
}

func parseAutoID(id string) (int64, bool) {
	if !IsAutoTaskID(id) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(id, autoIDPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func clockOrNow(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}

// Package telemetry carries autonomy decision events from the autopilot core
// to whatever observes them: the health monitor, structured logs, and the
// gateway event stream. Recording is best-effort and never fails the caller.
package telemetry

import "time"

// Outcome classifies an autonomy decision.
type Outcome string

const (
	OutcomeScheduled Outcome = "scheduled"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeError     Outcome = "error"
)

// Event names emitted by the autopilot.
const (
	EventScheduleNextTask = "autonomy.schedule_next_task"
	EventApprovalRequired = "autonomy.blocked.approval_required"
	EventInvalidSession   = "autonomy.blocked.invalid_session"
	EventMaxDepth         = "autonomy.blocked.max_depth"
	EventMaxTasks         = "autonomy.blocked.max_tasks"
	EventTodoUnavailable  = "autonomy.error.todo_unavailable"
	EventTodoUpdateFailed = "autonomy.error.todo_update_failed"
	EventQueueFull        = "autonomy.error.queue_full"
	EventRollbackDisabled = "autonomy.rollback.disabled"
	EventAutonomyToggled  = "autonomy.flag.toggled"
)

// Event is a single autonomy telemetry record. SessionID is kept raw for
// correlation only; task content is never attached.
type Event struct {
	ID              string    `json:"id"`
	Event           string    `json:"event"`
	SessionID       string    `json:"sessionID,omitempty"`
	Outcome         Outcome   `json:"outcome,omitempty"`
	AutonomyEnabled bool      `json:"autonomyEnabled"`
	TaskID          string    `json:"taskId,omitempty"`
	AutoTaskCount   int       `json:"autoTaskCount,omitempty"`
	Depth           int       `json:"depth,omitempty"`
	Error           string    `json:"error,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// IsDecision reports whether the event is a gate or scheduler decision that
// counts toward health.
func (e Event) IsDecision() bool {
	switch e.Outcome {
	case OutcomeScheduled, OutcomeBlocked, OutcomeError:
		return true
	default:
		return false
	}
}

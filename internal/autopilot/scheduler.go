package autopilot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alekspetrov/autonomy/internal/backlog"
	"github.com/alekspetrov/autonomy/internal/telemetry"
)

// Scheduler appends autonomous follow-up tasks to a session backlog once the
// gate allows it. It shares the gate's backlog store and telemetry sink.
type Scheduler struct {
	gate *Gate
	ids  *IDSource
	now  func() time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithIDSource sets the task id source.
func WithIDSource(ids *IDSource) SchedulerOption {
	return func(s *Scheduler) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithClock sets the clock used for task creation times.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = clockOrNow(now)
	}
}

// NewScheduler creates a Scheduler on top of gate.
func NewScheduler(gate *Gate, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		gate: gate,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ids == nil {
		s.ids = NewIDSource(s.now)
	}
	return s
}

// Gate returns the gate the scheduler consults.
func (s *Scheduler) Gate() *Gate {
	return s.gate
}

// ScheduleNextTask enqueues a pending, low-priority follow-up for rc.
// Empty content falls back to DefaultContent. It returns the new task id and
// true on success; every failure returns ("", false) and is reported through
// telemetry instead.
func (s *Scheduler) ScheduleNextTask(ctx context.Context, rc RunContext, content string) (string, bool) {
	if !s.gate.CanAutoContinue(ctx, rc) {
		return "", false
	}

	if strings.TrimSpace(content) == "" {
		content = DefaultContent(rc.CurrentTaskID)
	}

	current, err := s.gate.fetch(ctx, rc.SessionID)
	if err != nil {
		s.gate.fail(telemetry.EventTodoUnavailable, rc, err)
		return "", false
	}

	task := backlog.Task{
		ID:        s.ids.Next(current),
		Content:   content,
		Status:    backlog.StatusPending,
		Priority:  backlog.PriorityLow,
		CreatedAt: s.now(),
	}

	updated := make([]backlog.Task, 0, len(current)+1)
	updated = append(updated, current...)
	updated = append(updated, task)

	if err := s.store(ctx, rc.SessionID, updated); err != nil {
		s.gate.fail(telemetry.EventTodoUpdateFailed, rc, err)
		return "", false
	}

	s.gate.log.Info("scheduled autonomous task",
		slog.String("session_id", rc.SessionID),
		slog.String("task_id", task.ID),
		slog.Int("depth", rc.AutoTaskDepth),
	)
	s.gate.events.Record(telemetry.Event{
		Event:           telemetry.EventScheduleNextTask,
		SessionID:       rc.SessionID,
		Outcome:         telemetry.OutcomeScheduled,
		AutonomyEnabled: true,
		TaskID:          task.ID,
		Depth:           rc.AutoTaskDepth,
	})

	return task.ID, true
}

func (s *Scheduler) store(ctx context.Context, sessionID string, tasks []backlog.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backlog update panicked: %v", r)
		}
	}()
	return s.gate.backlog.Update(ctx, sessionID, tasks)
}

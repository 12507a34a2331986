package autopilot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alekspetrov/autonomy/internal/backlog"
	"github.com/alekspetrov/autonomy/internal/logging"
	"github.com/alekspetrov/autonomy/internal/telemetry"
)

// Gate decides whether a run may continue without a new user message.
// Checks run in a fixed order and the first failing one wins. The gate never
// returns an error or panics; collaborator failures resolve to false.
type Gate struct {
	flags   FlagSource
	backlog BacklogStore
	events  telemetry.Recorder
	limits  Limits
	log     *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLimits overrides the loop-prevention limits. Zero fields keep defaults.
func WithLimits(l Limits) GateOption {
	return func(g *Gate) {
		g.limits = l.withDefaults()
	}
}

// WithGateLogger sets the gate logger.
func WithGateLogger(log *slog.Logger) GateOption {
	return func(g *Gate) {
		if log != nil {
			g.log = log
		}
	}
}

// NewGate creates a Gate. events may be nil.
func NewGate(flags FlagSource, store BacklogStore, events telemetry.Recorder, opts ...GateOption) *Gate {
	g := &Gate{
		flags:   flags,
		backlog: store,
		events:  telemetry.Safe(events),
		limits:  DefaultLimits(),
		log:     logging.WithComponent("autopilot"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Limits returns the limits the gate enforces.
func (g *Gate) Limits() Limits {
	return g.limits
}

// CanAutoContinue runs the continuation checks for rc.
func (g *Gate) CanAutoContinue(ctx context.Context, rc RunContext) bool {
	if !g.enabled() {
		g.log.Debug("autonomy disabled, skipping continuation", slog.String("session_id", rc.SessionID))
		return false
	}

	if rc.RequireApproval {
		g.block(telemetry.EventApprovalRequired, rc, 0)
		return false
	}

	if strings.TrimSpace(rc.SessionID) == "" {
		g.block(telemetry.EventInvalidSession, rc, 0)
		return false
	}

	if rc.AutoTaskDepth >= g.limits.MaxDepth {
		g.block(telemetry.EventMaxDepth, rc, 0)
		return false
	}

	tasks, err := g.fetch(ctx, rc.SessionID)
	if err != nil {
		g.fail(telemetry.EventTodoUnavailable, rc, err)
		return false
	}

	if count := CountAutoTasks(tasks); count >= g.limits.MaxAutoTasks {
		g.block(telemetry.EventMaxTasks, rc, count)
		return false
	}

	return true
}

func (g *Gate) enabled() (on bool) {
	if g.flags == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("flag store panicked", slog.Any("panic", r))
			on = false
		}
	}()
	return g.flags.IsAutonomyContinueEnabled()
}

// fetch reads the backlog, converting a store panic into an error.
func (g *Gate) fetch(ctx context.Context, sessionID string) (tasks []backlog.Task, err error) {
	if g.backlog == nil {
		return nil, fmt.Errorf("backlog store not configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backlog get panicked: %v", r)
		}
	}()
	return g.backlog.Get(ctx, sessionID)
}

func (g *Gate) block(event string, rc RunContext, autoTaskCount int) {
	g.log.Info("autonomous continuation blocked",
		slog.String("event", event),
		slog.String("session_id", rc.SessionID),
		slog.Int("depth", rc.AutoTaskDepth),
	)
	g.events.Record(telemetry.Event{
		Event:           event,
		SessionID:       rc.SessionID,
		Outcome:         telemetry.OutcomeBlocked,
		AutonomyEnabled: true,
		AutoTaskCount:   autoTaskCount,
		Depth:           rc.AutoTaskDepth,
	})
}

func (g *Gate) fail(event string, rc RunContext, err error) {
	g.log.Warn("autopilot collaborator failed",
		slog.String("event", event),
		slog.String("session_id", rc.SessionID),
		slog.Any("error", err),
	)
	g.events.Record(telemetry.Event{
		Event:           event,
		SessionID:       rc.SessionID,
		Outcome:         telemetry.OutcomeError,
		AutonomyEnabled: g.enabled(),
		Depth:           rc.AutoTaskDepth,
		Error:           err.Error(),
	})
}

package autopilot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alekspetrov/autonomy/internal/logging"
	"github.com/alekspetrov/autonomy/internal/telemetry"
)

const (
	DefaultRollbackSchedule     = "@every 30s"
	DefaultRollbackMinDecisions = 20
)

// RollbackConfig controls automatic disabling of autonomy.
type RollbackConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Schedule     string `yaml:"schedule"`
	MinDecisions int    `yaml:"min_decisions"`
}

// DefaultRollbackConfig returns rollback settings. Rollback is off by default.
func DefaultRollbackConfig() RollbackConfig {
	return RollbackConfig{
		Enabled:      false,
		Schedule:     DefaultRollbackSchedule,
		MinDecisions: DefaultRollbackMinDecisions,
	}
}

// HealthSource supplies health snapshots.
type HealthSource interface {
	Snapshot() HealthSnapshot
}

// RollbackPolicy periodically reads the health snapshot and switches autonomy
// off when the autopilot is unhealthy with enough decisions to trust the
// rate. It never switches autonomy back on.
type RollbackPolicy struct {
	health HealthSource
	flags  FlagSwitch
	events telemetry.Recorder
	config RollbackConfig
	cron   *cron.Cron
	log    *slog.Logger

	mu      sync.Mutex
	running bool
	entryID cron.EntryID  // zero until the job is registered
	stop    chan struct{} // closed by Stop; one per run

	lastRun atomic.Int64 // unix nanos; kept off mu so Stop can wait on a running job
}

// NewRollbackPolicy creates a RollbackPolicy. events may be nil.
func NewRollbackPolicy(health HealthSource, flags FlagSwitch, events telemetry.Recorder, config RollbackConfig) *RollbackPolicy {
	if config.Schedule == "" {
		config.Schedule = DefaultRollbackSchedule
	}
	if config.MinDecisions <= 0 {
		config.MinDecisions = DefaultRollbackMinDecisions
	}
	return &RollbackPolicy{
		health: health,
		flags:  flags,
		events: telemetry.Safe(events),
		config: config,
		cron:   cron.New(),
		log:    logging.WithComponent("rollback"),
	}
}

// Start schedules evaluation. It is a no-op when rollback is disabled.
// Cancelling ctx stops the schedule.
func (p *RollbackPolicy) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if !p.config.Enabled {
		p.log.Info("rollback policy disabled")
		return nil
	}

	if p.entryID == 0 {
		entryID, err := p.cron.AddFunc(p.config.Schedule, func() {
			p.Evaluate()
		})
		if err != nil {
			return fmt.Errorf("invalid rollback schedule %q: %w", p.config.Schedule, err)
		}
		p.entryID = entryID
	}

	p.cron.Start()
	p.running = true
	stop := make(chan struct{})
	p.stop = stop

	go func() {
		select {
		case <-ctx.Done():
			p.stopRun(stop)
		case <-stop:
		}
	}()

	p.log.Info("rollback policy started",
		slog.String("schedule", p.config.Schedule),
		slog.Int("min_decisions", p.config.MinDecisions),
		slog.Time("next_run", p.cron.Entry(p.entryID).Next),
	)
	return nil
}

// Stop halts the schedule and waits for a running evaluation. Start may be
// called again afterwards.
func (p *RollbackPolicy) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// stopRun stops the run that owns stop, leaving any later run alone.
func (p *RollbackPolicy) stopRun(stop chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == stop {
		p.stopLocked()
	}
}

func (p *RollbackPolicy) stopLocked() {
	if !p.running {
		return
	}
	<-p.cron.Stop().Done()
	close(p.stop)
	p.stop = nil
	p.running = false
	p.log.Info("rollback policy stopped")
}

// IsRunning reports whether the schedule is active.
func (p *RollbackPolicy) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// NextRun returns the next scheduled evaluation, or zero when not running.
func (p *RollbackPolicy) NextRun() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return time.Time{}
	}
	return p.cron.Entry(p.entryID).Next
}

// LastRun returns when Evaluate last ran.
func (p *RollbackPolicy) LastRun() time.Time {
	n := p.lastRun.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Evaluate checks health once and disables autonomy if warranted. It
// reports whether it flipped the flag.
func (p *RollbackPolicy) Evaluate() bool {
	p.lastRun.Store(time.Now().UnixNano())

	if p.health == nil || p.flags == nil || !p.flags.IsAutonomyContinueEnabled() {
		return false
	}

	snap := p.health.Snapshot()
	if snap.HealthStatus != StatusUnhealthy || snap.TotalDecisions < p.config.MinDecisions {
		return false
	}

	reason := fmt.Sprintf("rollback: error rate %.2f over %d decisions", snap.ErrorRate, snap.TotalDecisions)
	if !p.flags.SetAutonomyContinueEnabled(false, reason) {
		return false
	}

	p.log.Warn("autonomy disabled by rollback policy",
		slog.Float64("error_rate", snap.ErrorRate),
		slog.Int("decisions", snap.TotalDecisions),
		slog.Int("errors", snap.Errors),
	)
	p.events.Record(telemetry.Event{
		Event:           telemetry.EventRollbackDisabled,
		AutonomyEnabled: false,
		Reason:          reason,
	})
	return true
}

package autopilot

import (
	"sync"
	"time"

	"github.com/alekspetrov/autonomy/internal/telemetry"
)

// HealthStatus classifies recent autopilot behaviour.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthConfig bounds the rolling window and sets the classification thresholds.
type HealthConfig struct {
	Window             time.Duration `yaml:"window"`
	MaxSamples         int           `yaml:"max_samples"`
	DegradedErrorRate  float64       `yaml:"degraded_error_rate"`
	UnhealthyErrorRate float64       `yaml:"unhealthy_error_rate"`
}

// DefaultHealthConfig returns the standard window and thresholds.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		MaxSamples:         1000,
		DegradedErrorRate:  0.10,
		UnhealthyErrorRate: 0.25,
	}
}

func (c HealthConfig) withDefaults() HealthConfig {
	def := DefaultHealthConfig()
	if c.MaxSamples <= 0 {
		c.MaxSamples = def.MaxSamples
	}
	if c.DegradedErrorRate <= 0 {
		c.DegradedErrorRate = def.DegradedErrorRate
	}
	if c.UnhealthyErrorRate <= 0 {
		c.UnhealthyErrorRate = def.UnhealthyErrorRate
	}
	return c
}

// HealthSnapshot is a point-in-time view of the rolling window.
type HealthSnapshot struct {
	Enabled        bool             `json:"enabled"`
	TotalDecisions int              `json:"totalDecisions"`
	Allowed        int              `json:"allowed"`
	Blocked        int              `json:"blocked"`
	Errors         int              `json:"errors"`
	ErrorRate      float64          `json:"errorRate"`
	SuccessRate    float64          `json:"successRate"`
	HealthStatus   HealthStatus     `json:"healthStatus"`
	Events         map[string]int64 `json:"events"`
	SnapshotAt     time.Time        `json:"snapshotAt"`
}

type decision struct {
	at      time.Time
	outcome telemetry.Outcome
}

// HealthMonitor aggregates autopilot decisions into a HealthSnapshot.
// It implements telemetry.Recorder and only reports; it never changes the
// feature flag. All methods are goroutine-safe.
type HealthMonitor struct {
	flags FlagSource
	cfg   HealthConfig
	now   func() time.Time

	mu        sync.RWMutex
	decisions []decision
	events    map[string]int64
}

// NewHealthMonitor creates a HealthMonitor. flags may be nil.
func NewHealthMonitor(flags FlagSource, cfg HealthConfig) *HealthMonitor {
	cfg = cfg.withDefaults()
	return &HealthMonitor{
		flags:     flags,
		cfg:       cfg,
		now:       time.Now,
		decisions: make([]decision, 0, 100),
		events:    make(map[string]int64),
	}
}

// SetClock replaces the monitor clock. Intended for tests.
func (m *HealthMonitor) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = clockOrNow(now)
}

// Record counts an event. Only decisions enter the window; every named
// event is tallied.
func (m *HealthMonitor) Record(event telemetry.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.Event != "" {
		m.events[event.Event]++
	}
	if !event.IsDecision() {
		return
	}

	at := event.Timestamp
	if at.IsZero() {
		at = m.now()
	}
	m.decisions = append(m.decisions, decision{at: at, outcome: event.Outcome})
	if len(m.decisions) > m.cfg.MaxSamples {
		m.decisions = m.decisions[len(m.decisions)-m.cfg.MaxSamples:]
	}
}

// Snapshot recomputes the health view from the current window.
func (m *HealthMonitor) Snapshot() HealthSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	snap := HealthSnapshot{
		Enabled:    m.flags != nil && m.flags.IsAutonomyContinueEnabled(),
		Events:     make(map[string]int64, len(m.events)),
		SnapshotAt: now,
	}
	for k, v := range m.events {
		snap.Events[k] = v
	}

	var cutoff time.Time
	if m.cfg.Window > 0 {
		cutoff = now.Add(-m.cfg.Window)
	}
	for _, d := range m.decisions {
		if !cutoff.IsZero() && d.at.Before(cutoff) {
			continue
		}
		switch d.outcome {
		case telemetry.OutcomeScheduled:
			snap.Allowed++
		case telemetry.OutcomeBlocked:
			snap.Blocked++
		case telemetry.OutcomeError:
			snap.Errors++
		}
	}
	snap.TotalDecisions = snap.Allowed + snap.Blocked + snap.Errors

	if snap.TotalDecisions > 0 {
		snap.ErrorRate = float64(snap.Errors) / float64(snap.TotalDecisions)
	}
	if attempts := snap.Allowed + snap.Errors; attempts > 0 {
		snap.SuccessRate = float64(snap.Allowed) / float64(attempts)
	} else {
		snap.SuccessRate = 1
	}
	snap.HealthStatus = m.classify(snap)
	return snap
}

// classify maps the error rate onto a status. Blocked decisions are policy
// working as intended and only dilute the error rate.
func (m *HealthMonitor) classify(snap HealthSnapshot) HealthStatus {
	switch {
	case snap.TotalDecisions == 0:
		return StatusHealthy
	case snap.ErrorRate < m.cfg.DegradedErrorRate:
		return StatusHealthy
	case snap.ErrorRate < m.cfg.UnhealthyErrorRate:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

// Reset clears all counters.
func (m *HealthMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = m.decisions[:0]
	m.events = make(map[string]int64)
}

// Package flags holds the autonomy kill switch. A single Store is built from
// configuration and shared by pointer, so one flip disables continuation
// everywhere without process-wide globals.
package flags

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alekspetrov/autonomy/internal/logging"
)

// Change describes a flag transition.
type Change struct {
	Enabled bool
	Reason  string
	At      time.Time
}

// Store is the feature-flag store for autonomous continuation.
// All methods are goroutine-safe.
type Store struct {
	enabled atomic.Bool

	mu        sync.RWMutex
	listeners []func(Change)
	last      Change
}

// New creates a Store with the given initial state.
func New(enabled bool) *Store {
	s := &Store{}
	s.enabled.Store(enabled)
	s.last = Change{Enabled: enabled, Reason: "initial", At: time.Now()}
	return s
}

// IsAutonomyContinueEnabled reports whether autonomous continuation is allowed.
// A nil Store reports false.
func (s *Store) IsAutonomyContinueEnabled() bool {
	if s == nil {
		return false
	}
	return s.enabled.Load()
}

// SetAutonomyContinueEnabled flips the flag. Listeners run only on an actual
// transition, synchronously, in registration order.
func (s *Store) SetAutonomyContinueEnabled(enabled bool, reason string) bool {
	if s.enabled.Swap(enabled) == enabled {
		return false
	}

	change := Change{Enabled: enabled, Reason: reason, At: time.Now()}

	s.mu.Lock()
	s.last = change
	listeners := make([]func(Change), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	logging.WithComponent("flags").Info("autonomy flag changed",
		slog.Bool("enabled", enabled),
		slog.String("reason", reason),
	)

	for _, fn := range listeners {
		fn(change)
	}
	return true
}

// OnChange registers a listener for flag transitions.
func (s *Store) OnChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// LastChange returns the most recent transition (or the initial state).
func (s *Store) LastChange() Change {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Package chaos injects faults into the autopilot's collaborators so tests
// can check fail-closed behavior when the backlog store errors, stalls,
// panics or flaps.
package chaos

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrInjected is wrapped by every injected error.
	ErrInjected = errors.New("injected fault")
	// ErrStalled is returned when a stall outlives its delay.
	ErrStalled = errors.New("injected stall")
)

// Mode selects what a faulted call does.
type Mode int

const (
	ModeOff   Mode = iota
	ModeError      // return an error
	ModeStall      // block for Delay, then ErrStalled
	ModeSlow       // block for Delay, then succeed
	ModePanic      // panic with Message
	ModeFlaky      // fail the first FailFirst calls, then recover
)

// Fault describes the fault an Injector applies.
type Fault struct {
	Mode      Mode
	Rate      float64 // chance per call in [0, 1]; ignored by ModeFlaky
	Delay     time.Duration
	FailFirst int
	Message   string
}

// Injector applies a Fault to calls routed through Apply. Safe for
// concurrent use.
type Injector struct {
	mu    sync.Mutex
	fault Fault
	rng   *rand.Rand

	paused   atomic.Bool
	calls    atomic.Int64
	injected atomic.Int64
}

// NewInjector returns an active Injector. seed makes Rate reproducible.
func NewInjector(f Fault, seed int64) *Injector {
	return &Injector{fault: f, rng: rand.New(rand.NewSource(seed))}
}

// Set replaces the fault.
func (in *Injector) Set(f Fault) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.fault = f
}

// Pause lets every call through uncounted until Resume.
func (in *Injector) Pause() { in.paused.Store(true) }

// Resume re-activates a paused Injector.
func (in *Injector) Resume() { in.paused.Store(false) }

// Stats returns how many calls were seen and how many were faulted.
func (in *Injector) Stats() (calls, injected int64) {
	return in.calls.Load(), in.injected.Load()
}

// Reset zeroes the counters, which also restarts a ModeFlaky run.
func (in *Injector) Reset() {
	in.calls.Store(0)
	in.injected.Store(0)
}

// Apply runs the fault for one call. It may return an error, block until
// the delay or ctx ends, or panic.
func (in *Injector) Apply(ctx context.Context) error {
	f, hit := in.roll()
	if !hit {
		return nil
	}

	switch f.Mode {
	case ModeError, ModeFlaky:
		return fmt.Errorf("%w: %s", ErrInjected, f.Message)
	case ModeStall, ModeSlow:
		t := time.NewTimer(f.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		if f.Mode == ModeStall {
			return ErrStalled
		}
		return nil
	case ModePanic:
		panic(f.Message)
	}
	return nil
}

// roll counts the call and decides whether it is faulted.
func (in *Injector) roll() (Fault, bool) {
	if in.paused.Load() {
		return Fault{}, false
	}
	in.calls.Add(1)

	in.mu.Lock()
	defer in.mu.Unlock()

	var hit bool
	switch in.fault.Mode {
	case ModeOff:
	case ModeFlaky:
		hit = in.injected.Load() < int64(in.fault.FailFirst)
	default:
		hit = in.rng.Float64() < in.fault.Rate
	}
	if hit {
		in.injected.Add(1)
	}
	return in.fault, hit
}

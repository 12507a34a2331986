package autopilot

import (
	"context"
	"errors"
	"sync"

	"github.com/alekspetrov/autonomy/internal/backlog"
	"github.com/alekspetrov/autonomy/internal/telemetry"
)

var errStoreDown = errors.New("store down")

// fakeStore is an in-memory BacklogStore that counts calls and can be told
// to fail or panic.
type fakeStore struct {
	mu       sync.Mutex
	tasks    map[string][]backlog.Task
	gets     int
	updates  int
	getErr   error
	getPanic bool
	updErr   error
	updPanic bool

	lastUpdateSession string
	lastUpdate        []backlog.Task
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string][]backlog.Task)}
}

func (f *fakeStore) Get(_ context.Context, sessionID string) ([]backlog.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getPanic {
		panic("get exploded")
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make([]backlog.Task, len(f.tasks[sessionID]))
	copy(out, f.tasks[sessionID])
	return out, nil
}

func (f *fakeStore) Update(_ context.Context, sessionID string, tasks []backlog.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updPanic {
		panic("update exploded")
	}
	if f.updErr != nil {
		return f.updErr
	}
	f.lastUpdateSession = sessionID
	f.lastUpdate = append([]backlog.Task(nil), tasks...)
	f.tasks[sessionID] = append([]backlog.Task(nil), tasks...)
	return nil
}

func (f *fakeStore) seed(sessionID string, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.tasks[sessionID] = append(f.tasks[sessionID], backlog.Task{
			ID:       id,
			Content:  "seed " + id,
			Status:   backlog.StatusPending,
			Priority: backlog.PriorityMedium,
		})
	}
}

func (f *fakeStore) counts() (gets, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.updates
}

type fakeFlags struct {
	mu      sync.Mutex
	enabled bool
	reasons []string
}

func (f *fakeFlags) IsAutonomyContinueEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeFlags) SetAutonomyContinueEnabled(enabled bool, reason string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enabled == enabled {
		return false
	}
	f.enabled = enabled
	f.reasons = append(f.reasons, reason)
	return true
}

type captureRecorder struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (c *captureRecorder) Record(e telemetry.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureRecorder) all() []telemetry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]telemetry.Event(nil), c.events...)
}

func (c *captureRecorder) names() []string {
	var out []string
	for _, e := range c.all() {
		out = append(out, e.Event)
	}
	return out
}

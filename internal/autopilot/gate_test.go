package autopilot

import (
	"context"
	"testing"

	"github.com/alekspetrov/autonomy/internal/telemetry"
)

func newTestGate(enabled bool, opts ...GateOption) (*Gate, *fakeStore, *captureRecorder) {
	store := newFakeStore()
	rec := &captureRecorder{}
	return NewGate(&fakeFlags{enabled: enabled}, store, rec, opts...), store, rec
}

func TestCanAutoContinue_FlagDisabled(t *testing.T) {
	contexts := []RunContext{
		{SessionID: "s1"},
		{SessionID: ""},
		{SessionID: "s1", RequireApproval: true},
		{SessionID: "s1", AutoTaskDepth: 10},
	}
	for _, rc := range contexts {
		gate, store, rec := newTestGate(false)
		if gate.CanAutoContinue(context.Background(), rc) {
			t.Errorf("CanAutoContinue(%+v) = true with flag off", rc)
		}
		if gets, _ := store.counts(); gets != 0 {
			t.Errorf("backlog read %d times with flag off, want 0", gets)
		}
		if n := len(rec.all()); n != 0 {
			t.Errorf("recorded %d events with flag off, want 0", n)
		}
	}
}

func TestCanAutoContinue_NilFlagSourceIsDisabled(t *testing.T) {
	gate := NewGate(nil, newFakeStore(), nil)
	if gate.CanAutoContinue(context.Background(), RunContext{SessionID: "s1"}) {
		t.Error("nil flag source should block")
	}
}

func TestCanAutoContinue_Checks(t *testing.T) {
	tests := []struct {
		name      string
		rc        RunContext
		seed      []string
		wantOK    bool
		wantEvent string
		wantCount int
	}{
		{
			name:      "approval required",
			rc:        RunContext{SessionID: "s1", RequireApproval: true},
			wantEvent: telemetry.EventApprovalRequired,
		},
		{
			name:      "approval wins over bad session",
			rc:        RunContext{SessionID: "", RequireApproval: true},
			wantEvent: telemetry.EventApprovalRequired,
		},
		{
			name:      "empty session",
			rc:        RunContext{SessionID: ""},
			wantEvent: telemetry.EventInvalidSession,
		},
		{
			name:      "whitespace session",
			rc:        RunContext{SessionID: "   "},
			wantEvent: telemetry.EventInvalidSession,
		},
		{
			name:      "depth at limit",
			rc:        RunContext{SessionID: "s1", AutoTaskDepth: 3},
			wantEvent: telemetry.EventMaxDepth,
		},
		{
			name:      "depth past limit",
			rc:        RunContext{SessionID: "s1", AutoTaskDepth: 7},
			wantEvent: telemetry.EventMaxDepth,
		},
		{
			name:      "five auto tasks",
			rc:        RunContext{SessionID: "s1"},
			seed:      []string{"auto-1", "auto-2", "auto-3", "auto-4", "auto-5"},
			wantEvent: telemetry.EventMaxTasks,
			wantCount: 5,
		},
		{
			name:   "three auto tasks at depth two",
			rc:     RunContext{SessionID: "s1", AutoTaskDepth: 2},
			seed:   []string{"auto-1", "auto-2", "auto-3"},
			wantOK: true,
		},
		{
			name:   "non-auto ids do not count",
			rc:     RunContext{SessionID: "s1"},
			seed:   []string{"t1", "t2", "auto-x", "auto-", "xauto-1", "auto-1-2", "auto-9"},
			wantOK: true,
		},
		{
			name:   "empty backlog",
			rc:     RunContext{SessionID: "s1"},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, store, rec := newTestGate(true)
			store.seed("s1", tt.seed...)

			if got := gate.CanAutoContinue(context.Background(), tt.rc); got != tt.wantOK {
				t.Fatalf("CanAutoContinue = %v, want %v", got, tt.wantOK)
			}

			events := rec.all()
			if tt.wantOK {
				if len(events) != 0 {
					t.Errorf("allowed decision recorded %v, want nothing", rec.names())
				}
				return
			}
			if len(events) != 1 {
				t.Fatalf("recorded %v, want exactly one event", rec.names())
			}
			e := events[0]
			if e.Event != tt.wantEvent {
				t.Errorf("event = %q, want %q", e.Event, tt.wantEvent)
			}
			if e.Outcome != telemetry.OutcomeBlocked {
				t.Errorf("outcome = %q, want blocked", e.Outcome)
			}
			if !e.AutonomyEnabled {
				t.Error("autonomyEnabled should be true for a policy block")
			}
			if e.AutoTaskCount != tt.wantCount {
				t.Errorf("autoTaskCount = %d, want %d", e.AutoTaskCount, tt.wantCount)
			}
			if e.Timestamp.IsZero() {
				t.Error("timestamp should be injected by the recorder")
			}
		})
	}
}

func TestCanAutoContinue_PolicyBlocksSkipBacklog(t *testing.T) {
	for _, rc := range []RunContext{
		{SessionID: "s1", RequireApproval: true},
		{SessionID: ""},
		{SessionID: "s1", AutoTaskDepth: 3},
	} {
		gate, store, _ := newTestGate(true)
		gate.CanAutoContinue(context.Background(), rc)
		if gets, _ := store.counts(); gets != 0 {
			t.Errorf("rc %+v read the backlog %d times, want 0", rc, gets)
		}
	}
}

func TestCanAutoContinue_BacklogFailureFailsClosed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeStore)
	}{
		{"error", func(s *fakeStore) { s.getErr = errStoreDown }},
		{"panic", func(s *fakeStore) { s.getPanic = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, store, rec := newTestGate(true)
			tt.setup(store)

			if gate.CanAutoContinue(context.Background(), RunContext{SessionID: "s1"}) {
				t.Fatal("CanAutoContinue = true on backlog failure")
			}
			events := rec.all()
			if len(events) != 1 || events[0].Event != telemetry.EventTodoUnavailable {
				t.Fatalf("recorded %v, want todo_unavailable", rec.names())
			}
			if events[0].Outcome != telemetry.OutcomeError || events[0].Error == "" {
				t.Errorf("event = %+v, want error outcome with message", events[0])
			}
		})
	}
}

func TestCanAutoContinue_NilBacklogFailsClosed(t *testing.T) {
	rec := &captureRecorder{}
	gate := NewGate(&fakeFlags{enabled: true}, nil, rec)
	if gate.CanAutoContinue(context.Background(), RunContext{SessionID: "s1"}) {
		t.Fatal("nil backlog should fail closed")
	}
	if names := rec.names(); len(names) != 1 || names[0] != telemetry.EventTodoUnavailable {
		t.Errorf("recorded %v, want todo_unavailable", names)
	}
}

func TestCanAutoContinue_CustomLimits(t *testing.T) {
	gate, store, rec := newTestGate(true, WithLimits(Limits{MaxDepth: 1, MaxAutoTasks: 2}))
	store.seed("s1", "auto-1")

	if !gate.CanAutoContinue(context.Background(), RunContext{SessionID: "s1"}) {
		t.Error("one auto task under a cap of two should be allowed")
	}
	if gate.CanAutoContinue(context.Background(), RunContext{SessionID: "s1", AutoTaskDepth: 1}) {
		t.Error("depth 1 should hit MaxDepth 1")
	}
	store.seed("s1", "auto-2")
	if gate.CanAutoContinue(context.Background(), RunContext{SessionID: "s1"}) {
		t.Error("two auto tasks should hit MaxAutoTasks 2")
	}
	if names := rec.names(); len(names) != 2 {
		t.Errorf("recorded %v, want two block events", names)
	}
}

func TestWithLimits_ZeroKeepsDefaults(t *testing.T) {
	gate, _, _ := newTestGate(true, WithLimits(Limits{}))
	if got := gate.Limits(); got != DefaultLimits() {
		t.Errorf("Limits() = %+v, want %+v", got, DefaultLimits())
	}
}

func TestCanAutoContinue_TelemetryPanicDoesNotEscape(t *testing.T) {
	gate := NewGate(&fakeFlags{enabled: true}, newFakeStore(),
		telemetry.RecorderFunc(func(telemetry.Event) { panic("sink down") }))

	if gate.CanAutoContinue(context.Background(), RunContext{SessionID: ""}) {
		t.Error("empty session should still be blocked")
	}
}

func TestIsAutoTaskID(t *testing.T) {
	tests := map[string]bool{
		"auto-1":             true,
		"auto-1720000000000": true,
		"auto-":              false,
		"auto-12a":           false,
		"AUTO-1":             false,
		"t1":                 false,
		" auto-1":            false,
	}
	for id, want := range tests {
		if got := IsAutoTaskID(id); got != want {
			t.Errorf("IsAutoTaskID(%q) = %v, want %v", id, got, want)
		}
	}
}

package telemetry

import (
	"sync"
	"testing"
	"time"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureRecorder) Record(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureRecorder) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestSafe_InjectsTimestampAndID(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	capture := &captureRecorder{}

	r := Safe(capture, WithClock(func() time.Time { return fixed }), WithIDGenerator(func() string { return "evt-1" }))
	r.Record(Event{Event: EventScheduleNextTask, SessionID: "s1", Outcome: OutcomeScheduled})

	got := capture.all()
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if !got[0].Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", got[0].Timestamp, fixed)
	}
	if got[0].ID != "evt-1" {
		t.Errorf("ID = %q, want %q", got[0].ID, "evt-1")
	}
}

func TestSafe_DefaultIDIsUUID(t *testing.T) {
	capture := &captureRecorder{}
	Safe(capture).Record(Event{Event: EventMaxTasks})

	got := capture.all()
	if len(got[0].ID) != 36 {
		t.Errorf("ID = %q, want a 36-char uuid", got[0].ID)
	}
}

func TestSafe_KeepsCallerTimestamp(t *testing.T) {
	callerTime := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)
	capture := &captureRecorder{}

	Safe(capture).Record(Event{Event: EventMaxDepth, Timestamp: callerTime, ID: "given"})

	got := capture.all()[0]
	if !got.Timestamp.Equal(callerTime) || got.ID != "given" {
		t.Errorf("event = %+v, want caller timestamp and ID preserved", got)
	}
}

func TestSafe_RecoversPanics(t *testing.T) {
	r := Safe(RecorderFunc(func(Event) { panic("sink exploded") }))

	defer func() {
		if p := recover(); p != nil {
			t.Fatalf("panic escaped Safe: %v", p)
		}
	}()
	r.Record(Event{Event: EventScheduleNextTask})
}

func TestSafe_NilRecorder(t *testing.T) {
	Safe(nil).Record(Event{Event: EventScheduleNextTask})
}

func TestMulti_IsolatesFailingSink(t *testing.T) {
	first := &captureRecorder{}
	last := &captureRecorder{}

	m := Multi(first, RecorderFunc(func(Event) { panic("boom") }), nil, last)
	m.Record(Event{Event: EventInvalidSession, Outcome: OutcomeBlocked})

	if len(first.all()) != 1 {
		t.Errorf("first sink got %d events, want 1", len(first.all()))
	}
	if len(last.all()) != 1 {
		t.Errorf("last sink got %d events, want 1", len(last.all()))
	}
}

func TestEvent_IsDecision(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    bool
	}{
		{OutcomeScheduled, true},
		{OutcomeBlocked, true},
		{OutcomeError, true},
		{"", false},
	}
	for _, tt := range tests {
		if got := (Event{Outcome: tt.outcome}).IsDecision(); got != tt.want {
			t.Errorf("IsDecision(%q) = %v, want %v", tt.outcome, got, tt.want)
		}
	}
}

func TestLogRecorder_DoesNotPanic(t *testing.T) {
	r := NewLogRecorder(nil)
	r.Record(Event{Event: EventMaxTasks, Outcome: OutcomeBlocked, AutoTaskCount: 5, SessionID: "s1"})
	r.Record(Event{Event: EventTodoUnavailable, Outcome: OutcomeError, Error: "db down"})
}

func TestHub_RecentAndSubscribe(t *testing.T) {
	h := NewHub(3)
	sub := h.Subscribe()

	for i := 0; i < 5; i++ {
		h.Record(Event{Event: EventScheduleNextTask, Depth: i})
	}

	recent := h.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("Recent = %d events, want 3", len(recent))
	}
	if recent[0].Depth != 2 || recent[2].Depth != 4 {
		t.Errorf("Recent depths = [%d..%d], want [2..4]", recent[0].Depth, recent[2].Depth)
	}
	if got := h.Recent(2); len(got) != 2 || got[1].Depth != 4 {
		t.Errorf("Recent(2) = %+v, want last two events", got)
	}

	select {
	case e := <-sub:
		if e.Depth != 0 {
			t.Errorf("first delivered depth = %d, want 0", e.Depth)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber received nothing")
	}

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	for range sub {
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(10)
	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultSubscriberBuf+10; i++ {
			h.Record(Event{Event: EventScheduleNextTask})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full subscriber")
	}
	if h.Dropped() != 10 {
		t.Errorf("Dropped = %d, want 10", h.Dropped())
	}
}

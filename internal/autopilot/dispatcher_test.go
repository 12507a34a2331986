package autopilot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alekspetrov/autonomy/internal/telemetry"
)

// blockingScheduler holds every attempt until release is closed.
type blockingScheduler struct {
	release chan struct{}
	mu      sync.Mutex
	calls   []Request
	ctxErrs []error
}

func (b *blockingScheduler) ScheduleNextTask(ctx context.Context, rc RunContext, content string) (string, bool) {
	if b.release != nil {
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Request{Run: rc, Content: content})
	b.ctxErrs = append(b.ctxErrs, ctx.Err())
	return "auto-1", true
}

func (b *blockingScheduler) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func TestDispatcher_RunsSubmittedRequests(t *testing.T) {
	sched, store, _ := newTestScheduler(true)

	var mu sync.Mutex
	var results []Result
	d := NewDispatcher(sched, WithWorkers(1), WithResultHook(func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}))
	d.Start(context.Background())

	if !d.Submit(context.Background(), Request{Run: RunContext{SessionID: "s1", CurrentTaskID: "t1"}}) {
		t.Fatal("Submit refused the request")
	}
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 || !results[0].OK || !IsAutoTaskID(results[0].TaskID) {
		t.Fatalf("results = %+v, want one scheduled task", results)
	}
	if _, updates := store.counts(); updates != 1 {
		t.Errorf("Update called %d times, want 1", updates)
	}
}

func TestDispatcher_SubmitNeverBlocksWhenFull(t *testing.T) {
	sched := &blockingScheduler{release: make(chan struct{})}
	rec := &captureRecorder{}
	d := NewDispatcher(sched, WithWorkers(1), WithQueueSize(1), WithDispatcherEvents(rec))
	d.Start(context.Background())

	// First request occupies the worker, second fills the queue.
	d.Submit(context.Background(), Request{Run: RunContext{SessionID: "s1"}})
	waitFor(t, func() bool { return d.Pending() == 0 })
	d.Submit(context.Background(), Request{Run: RunContext{SessionID: "s1"}})

	done := make(chan bool)
	go func() { done <- d.Submit(context.Background(), Request{Run: RunContext{SessionID: "s1"}}) }()

	select {
	case accepted := <-done:
		if accepted {
			t.Error("Submit accepted a request into a full queue")
		}
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}

	events := rec.all()
	if len(events) != 1 || events[0].Event != telemetry.EventQueueFull || events[0].Outcome != telemetry.OutcomeError {
		t.Errorf("recorded %v, want one queue_full error", rec.names())
	}

	close(sched.release)
	d.Stop()
	if got := sched.count(); got != 2 {
		t.Errorf("ran %d attempts, want 2", got)
	}
}

func TestDispatcher_StopDrainsQueue(t *testing.T) {
	sched := &blockingScheduler{}
	d := NewDispatcher(sched, WithWorkers(2), WithQueueSize(20))

	for i := 0; i < 10; i++ {
		d.Submit(context.Background(), Request{Run: RunContext{SessionID: "s1"}})
	}
	d.Start(context.Background())
	d.Stop()

	if got := sched.count(); got != 10 {
		t.Errorf("ran %d attempts, want 10", got)
	}
	if d.Submit(context.Background(), Request{Run: RunContext{SessionID: "s1"}}) {
		t.Error("Submit after Stop should be refused")
	}
	d.Stop()
}

func TestDispatcher_AttemptDetachedFromSubmitter(t *testing.T) {
	sched := &blockingScheduler{}
	d := NewDispatcher(sched, WithWorkers(1), WithAttemptTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	d.Submit(ctx, Request{Run: RunContext{SessionID: "s1"}})
	cancel()

	d.Start(context.Background())
	d.Stop()

	sched.mu.Lock()
	defer sched.mu.Unlock()
	if len(sched.ctxErrs) != 1 || sched.ctxErrs[0] != nil {
		t.Errorf("attempt ctx errs = %v, want [nil]", sched.ctxErrs)
	}
}

func TestDispatcher_StopWithoutStart(t *testing.T) {
	sched := &blockingScheduler{}
	d := NewDispatcher(sched)
	d.Submit(context.Background(), Request{Run: RunContext{SessionID: "s1"}})
	d.Stop()

	if got := sched.count(); got != 0 {
		t.Errorf("ran %d attempts without workers, want 0", got)
	}
}

func TestDispatcher_ContextCancelStops(t *testing.T) {
	d := NewDispatcher(&blockingScheduler{})
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()

	waitFor(t, func() bool {
		return !d.Submit(context.Background(), Request{Run: RunContext{SessionID: "s1"}})
	})
}

type panickingScheduler struct{}

func (panickingScheduler) ScheduleNextTask(context.Context, RunContext, string) (string, bool) {
	panic("scheduler bug")
}

func TestDispatcher_RecoversSchedulerPanic(t *testing.T) {
	var got []Result
	d := NewDispatcher(panickingScheduler{}, WithWorkers(1), WithResultHook(func(r Result) { got = append(got, r) }))
	d.Start(context.Background())
	d.Submit(context.Background(), Request{Run: RunContext{SessionID: "s1"}})
	d.Stop()

	if len(got) != 1 || got[0].OK {
		t.Errorf("results = %+v, want one failed attempt", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

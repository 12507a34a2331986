package autopilot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alekspetrov/autonomy/internal/logging"
	"github.com/alekspetrov/autonomy/internal/telemetry"
)

const (
	DefaultWorkers        = 2
	DefaultQueueSize      = 100
	DefaultAttemptTimeout = 10 * time.Second
)

// TaskScheduler is what the dispatcher runs for each request.
type TaskScheduler interface {
	ScheduleNextTask(ctx context.Context, rc RunContext, content string) (string, bool)
}

// Request is one fire-and-forget scheduling request.
type Request struct {
	Run     RunContext `json:"run"`
	Content string     `json:"content,omitempty"`
}

// Result reports how a dispatched request ended.
type Result struct {
	Request Request
	TaskID  string
	OK      bool
}

type job struct {
	ctx context.Context
	req Request
}

// Dispatcher runs scheduling attempts on a small worker pool so tool
// callers never wait on the backlog. Submit never blocks: a full queue drops
// the request. Attempts are not cancelled once started; each runs under a
// context detached from the submitter and bounded by the attempt timeout.
type Dispatcher struct {
	scheduler TaskScheduler
	events    telemetry.Recorder
	workers   int
	timeout   time.Duration
	onResult  func(Result)
	log       *slog.Logger

	queue chan job

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets the pending request buffer.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan job, n)
		}
	}
}

// WithAttemptTimeout bounds a single scheduling attempt.
func WithAttemptTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithResultHook registers a callback invoked after every attempt.
func WithResultHook(fn func(Result)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onResult = fn
	}
}

// WithDispatcherEvents sets the recorder used for queue overflow events.
func WithDispatcherEvents(events telemetry.Recorder) DispatcherOption {
	return func(d *Dispatcher) {
		d.events = telemetry.Safe(events)
	}
}

// NewDispatcher creates a Dispatcher. Call Start before expecting work to run;
// requests submitted earlier wait in the queue.
func NewDispatcher(scheduler TaskScheduler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		scheduler: scheduler,
		events:    telemetry.Safe(nil),
		workers:   DefaultWorkers,
		timeout:   DefaultAttemptTimeout,
		log:       logging.WithComponent("dispatcher"),
		queue:     make(chan job, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the workers. Cancelling ctx stops the dispatcher after the
// queue drains.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started || d.stopped {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			d.Stop()
		}()
	}

	d.log.Info("dispatcher started", slog.Int("workers", d.workers), slog.Int("queue_size", cap(d.queue)))
}

// Submit queues req and returns immediately. It returns false when the
// request was dropped because the queue is full or the dispatcher stopped.
func (d *Dispatcher) Submit(ctx context.Context, req Request) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.log.Warn("dispatcher stopped, dropping request", slog.String("session_id", req.Run.SessionID))
		return false
	}

	select {
	case d.queue <- job{ctx: ctx, req: req}:
		return true
	default:
		d.log.Warn("dispatch queue full, dropping request",
			slog.String("session_id", req.Run.SessionID),
			slog.Int("queue_size", cap(d.queue)),
		)
		d.events.Record(telemetry.Event{
			Event:     telemetry.EventQueueFull,
			SessionID: req.Run.SessionID,
			Outcome:   telemetry.OutcomeError,
			Depth:     req.Run.AutoTaskDepth,
			Error:     "dispatch queue full",
		})
		return false
	}
}

// Stop refuses new requests, lets the workers drain the queue and waits
// for them. Safe to call more than once.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.wg.Wait()
		return
	}
	d.stopped = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		// Nobody will read the queue; discard what is left.
		for range d.queue {
		}
		return
	}
	d.wg.Wait()
	d.log.Info("dispatcher stopped")
}

// Pending returns the number of queued requests.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.run(j)
	}
}

func (d *Dispatcher) run(j job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(j.ctx), d.timeout)
	defer cancel()

	res := Result{Request: j.req}
	func() {
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("scheduling attempt panicked",
					slog.String("session_id", j.req.Run.SessionID),
					slog.Any("panic", r),
				)
			}
		}()
		res.TaskID, res.OK = d.scheduler.ScheduleNextTask(ctx, j.req.Run, j.req.Content)
	}()

	if d.onResult != nil {
		d.onResult(res)
	}
}

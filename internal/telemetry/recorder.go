package telemetry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alekspetrov/autonomy/internal/logging"
)

// Recorder consumes telemetry events. Implementations should return quickly;
// callers wrap them with Safe so a misbehaving recorder cannot break a decision.
type Recorder interface {
	Record(event Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Event)

// Record calls f(event).
func (f RecorderFunc) Record(event Event) { f(event) }

// Nop discards every event.
var Nop Recorder = RecorderFunc(func(Event) {})

// SafeRecorder stamps events with an ID and timestamp and shields the caller
// from panics in the wrapped recorder.
type SafeRecorder struct {
	next  Recorder
	now   func() time.Time
	newID func() string
	log   *slog.Logger
}

// SafeOption configures a SafeRecorder.
type SafeOption func(*SafeRecorder)

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) SafeOption {
	return func(s *SafeRecorder) {
		s.now = now
	}
}

// WithIDGenerator sets the event ID source.
func WithIDGenerator(fn func() string) SafeOption {
	return func(s *SafeRecorder) {
		s.newID = fn
	}
}

// Safe wraps r. A nil r records nothing.
func Safe(r Recorder, opts ...SafeOption) *SafeRecorder {
	if r == nil {
		r = Nop
	}
	s := &SafeRecorder{
		next:  r,
		now:   time.Now,
		newID: uuid.NewString,
		log:   logging.WithComponent("telemetry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record stamps and forwards the event. It never panics.
func (s *SafeRecorder) Record(event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("telemetry recorder panicked",
				slog.String("event", event.Event),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if event.ID == "" {
		event.ID = s.newID()
	}
	s.next.Record(event)
}

type multiRecorder []Recorder

// Multi fans each event out to every recorder. A panic in one recorder does
// not prevent delivery to the others.
func Multi(recorders ...Recorder) Recorder {
	out := make(multiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multiRecorder) Record(event Event) {
	for _, r := range m {
		recordIsolated(r, event)
	}
}

func recordIsolated(r Recorder, event Event) {
	defer func() {
		if p := recover(); p != nil {
			logging.WithComponent("telemetry").Warn("telemetry sink panicked",
				slog.String("event", event.Event),
				slog.String("panic", fmt.Sprint(p)),
			)
		}
	}()
	r.Record(event)
}

// LogRecorder writes every event as a structured log line.
type LogRecorder struct {
	log *slog.Logger
}

// NewLogRecorder creates a LogRecorder. A nil logger uses the telemetry component logger.
func NewLogRecorder(log *slog.Logger) *LogRecorder {
	if log == nil {
		log = logging.WithComponent("telemetry")
	}
	return &LogRecorder{log: log}
}

// Record logs the event. Errors log at warn, everything else at info.
func (l *LogRecorder) Record(event Event) {
	attrs := []any{
		slog.String("event", event.Event),
		slog.String("session_id", event.SessionID),
		slog.String("outcome", string(event.Outcome)),
		slog.Bool("autonomy_enabled", event.AutonomyEnabled),
	}
	if event.TaskID != "" {
		attrs = append(attrs, slog.String("task_id", event.TaskID))
	}
	if event.AutoTaskCount > 0 {
		attrs = append(attrs, slog.Int("auto_task_count", event.AutoTaskCount))
	}
	if event.Depth > 0 {
		attrs = append(attrs, slog.Int("depth", event.Depth))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}

	if event.Outcome == OutcomeError {
		l.log.Warn("autonomy event", attrs...)
		return
	}
	l.log.Info("autonomy event", attrs...)
}

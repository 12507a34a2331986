package gateway

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/alekspetrov/autonomy/internal/autopilot"
)

// QueueSource reports dispatcher backlog.
type QueueSource interface {
	Pending() int
}

// DropSource reports events dropped by the stream.
type DropSource interface {
	Dropped() int64
}

// PrometheusExporter formats autopilot health for Prometheus scraping.
type PrometheusExporter struct {
	health autopilot.HealthSource
	queue  QueueSource
	drops  DropSource
}

// NewPrometheusExporter creates a new Prometheus exporter. queue and drops
// may be nil.
func NewPrometheusExporter(health autopilot.HealthSource, queue QueueSource, drops DropSource) *PrometheusExporter {
	return &PrometheusExporter{health: health, queue: queue, drops: drops}
}

// WritePrometheus writes metrics in Prometheus text format to the writer.
func (e *PrometheusExporter) WritePrometheus(w io.Writer) error {
	snap := e.health.Snapshot()

	// --- Counters ---

	writeHelp(w, "autonomy_events_total", "Autonomy telemetry events by name")
	writeType(w, "autonomy_events_total", "counter")
	names := make([]string, 0, len(snap.Events))
	for name := range snap.Events {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writeCounter(w, "autonomy_events_total", snap.Events[name], "event", name)
	}

	if e.drops != nil {
		writeHelp(w, "autonomy_event_stream_dropped_total", "Events dropped for slow stream subscribers")
		writeType(w, "autonomy_event_stream_dropped_total", "counter")
		writeCounter(w, "autonomy_event_stream_dropped_total", e.drops.Dropped())
	}

	// --- Gauges (rolling window) ---

	writeHelp(w, "autonomy_window_decisions", "Decisions in the health window by outcome")
	writeType(w, "autonomy_window_decisions", "gauge")
	writeGaugeLabeled(w, "autonomy_window_decisions", float64(snap.Allowed), "outcome", "scheduled")
	writeGaugeLabeled(w, "autonomy_window_decisions", float64(snap.Blocked), "outcome", "blocked")
	writeGaugeLabeled(w, "autonomy_window_decisions", float64(snap.Errors), "outcome", "error")

	writeHelp(w, "autonomy_error_rate", "Share of window decisions that were errors (0-1)")
	writeType(w, "autonomy_error_rate", "gauge")
	writeGauge(w, "autonomy_error_rate", snap.ErrorRate)

	writeHelp(w, "autonomy_success_rate", "Share of scheduling attempts that succeeded (0-1)")
	writeType(w, "autonomy_success_rate", "gauge")
	writeGauge(w, "autonomy_success_rate", snap.SuccessRate)

	writeHelp(w, "autonomy_enabled", "Whether autonomous continuation is enabled")
	writeType(w, "autonomy_enabled", "gauge")
	writeGauge(w, "autonomy_enabled", boolGauge(snap.Enabled))

	writeHelp(w, "autonomy_health_status", "Current health classification")
	writeType(w, "autonomy_health_status", "gauge")
	for _, status := range []autopilot.HealthStatus{autopilot.StatusHealthy, autopilot.StatusDegraded, autopilot.StatusUnhealthy} {
		writeGaugeLabeled(w, "autonomy_health_status", boolGauge(snap.HealthStatus == status), "status", string(status))
	}

	if e.queue != nil {
		writeHelp(w, "autonomy_dispatch_queue_depth", "Scheduling requests waiting for a worker")
		writeType(w, "autonomy_dispatch_queue_depth", "gauge")
		writeGauge(w, "autonomy_dispatch_queue_depth", float64(e.queue.Pending()))
	}

	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// writeHelp writes a HELP line for a metric.
func writeHelp(w io.Writer, name, help string) {
	_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
}

// writeType writes a TYPE line for a metric.
func writeType(w io.Writer, name, metricType string) {
	_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)
}

// writeCounter writes a counter metric line.
func writeCounter(w io.Writer, name string, value int64, labelPairs ...string) {
	if len(labelPairs) == 0 {
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
		return
	}
	_, _ = fmt.Fprintf(w, "%s{%s} %d\n", name, formatLabels(labelPairs), value)
}

// writeGauge writes a gauge metric line.
func writeGauge(w io.Writer, name string, value float64) {
	_, _ = fmt.Fprintf(w, "%s %g\n", name, value)
}

// writeGaugeLabeled writes a gauge metric with labels.
func writeGaugeLabeled(w io.Writer, name string, value float64, labelPairs ...string) {
	_, _ = fmt.Fprintf(w, "%s{%s} %g\n", name, formatLabels(labelPairs), value)
}

// formatLabels formats label key-value pairs for Prometheus output.
func formatLabels(pairs []string) string {
	var b strings.Builder
	for i := 0; i < len(pairs); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		value := ""
		if i+1 < len(pairs) {
			value = pairs[i+1]
		}
		fmt.Fprintf(&b, "%s=\"%s\"", pairs[i], escapeLabel(value))
	}
	return b.String()
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// escapeLabel escapes special characters in label values.
func escapeLabel(s string) string {
	return labelEscaper.Replace(s)
}

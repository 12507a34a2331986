// Package gateway exposes the autopilot over HTTP: health and metrics,
// fire-and-forget scheduling, backlog inspection, the autonomy switch, and a
// WebSocket stream of telemetry events.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alekspetrov/autonomy/internal/autopilot"
	"github.com/alekspetrov/autonomy/internal/backlog"
	"github.com/alekspetrov/autonomy/internal/followup"
	"github.com/alekspetrov/autonomy/internal/logging"
	"github.com/alekspetrov/autonomy/internal/telemetry"
)

const maxBodyBytes = 1 << 20

// Dispatcher accepts scheduling requests without blocking.
type Dispatcher interface {
	Submit(ctx context.Context, req autopilot.Request) bool
	Pending() int
}

// BacklogReader reads a session backlog.
type BacklogReader interface {
	Get(ctx context.Context, sessionID string) ([]backlog.Task, error)
}

// EventSource streams telemetry events.
type EventSource interface {
	Recent(limit int) []telemetry.Event
	Subscribe() chan telemetry.Event
	Unsubscribe(ch chan telemetry.Event)
	Dropped() int64
}

// Server is the gateway HTTP server. Collaborators are optional; routes whose
// collaborator is missing answer 503. Server is safe for concurrent use.
type Server struct {
	config     *Config
	authConfig *AuthConfig
	version    string

	dispatcher Dispatcher
	backlog    BacklogReader
	health     autopilot.HealthSource
	flags      autopilot.FlagSwitch
	events     EventSource
	recorder   telemetry.Recorder
	followups  *followup.Registry

	watchers *watcherSet
	upgrader websocket.Upgrader

	server    *http.Server
	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// Config holds gateway server configuration including network binding options.
type Config struct {
	// Host is the network interface to bind to (e.g., "127.0.0.1" or "0.0.0.0").
	Host string `yaml:"host"`
	// Port is the TCP port number to listen on.
	Port int `yaml:"port"`
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ServerOption is a functional option for configuring Server.
type ServerOption func(*Server)

// WithAuthConfig protects /api/v1/* and /ws/events with the given auth.
func WithAuthConfig(auth *AuthConfig) ServerOption {
	return func(s *Server) { s.authConfig = auth }
}

// WithVersion sets the version reported by /api/v1/status.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// WithDispatcher enables POST /api/v1/schedule.
func WithDispatcher(d Dispatcher) ServerOption {
	return func(s *Server) { s.dispatcher = d }
}

// WithBacklog enables GET /api/v1/sessions/{id}/backlog.
func WithBacklog(b BacklogReader) ServerOption {
	return func(s *Server) { s.backlog = b }
}

// WithHealth enables /health details and /metrics.
func WithHealth(h autopilot.HealthSource) ServerOption {
	return func(s *Server) { s.health = h }
}

// WithFlags enables /api/v1/autonomy.
func WithFlags(f autopilot.FlagSwitch) ServerOption {
	return func(s *Server) { s.flags = f }
}

// WithEvents enables /ws/events.
func WithEvents(e EventSource) ServerOption {
	return func(s *Server) { s.events = e }
}

// WithRecorder sets where operator actions such as flag toggles are recorded.
func WithRecorder(r telemetry.Recorder) ServerOption {
	return func(s *Server) { s.recorder = telemetry.Safe(r) }
}

// WithFollowUps lets schedule requests carry a tool result instead of content.
func WithFollowUps(r *followup.Registry) ServerOption {
	return func(s *Server) { s.followups = r }
}

// NewServer creates a new gateway server with the given configuration.
// The server is not started until Start is called.
func NewServer(config *Config, opts ...ServerOption) *Server {
	s := &Server{
		config:   config,
		version:  "dev",
		recorder: telemetry.Safe(nil),
		watchers: newWatcherSet(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkLocalOrigin,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// checkLocalOrigin allows originless clients (CLI tools) and localhost pages.
func checkLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	protect := func(h http.HandlerFunc) http.Handler { return h }
	if s.authConfig != nil {
		auth := NewAuthenticator(s.authConfig)
		protect = func(h http.HandlerFunc) http.Handler { return auth.Middleware(h) }
	}

	mux.Handle("GET /ws/events", protect(s.handleEventsWebSocket))
	mux.Handle("GET /api/v1/status", protect(s.handleStatus))
	mux.Handle("POST /api/v1/schedule", protect(s.handleSchedule))
	mux.Handle("GET /api/v1/sessions/{id}/backlog", protect(s.handleBacklog))
	mux.Handle("GET /api/v1/autonomy", protect(s.handleGetAutonomy))
	mux.Handle("POST /api/v1/autonomy", protect(s.handleSetAutonomy))

	return mux
}

// Start starts the gateway server and blocks until the context is cancelled
// or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()

	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	logging.WithComponent("gateway").Info("Gateway starting", slog.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the server with a 30-second timeout.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.running = false
	s.watchers.CloseAll()
	return s.server.Shutdown(ctx)
}

// handleHealth returns the autopilot health snapshot
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"healthStatus": string(autopilot.StatusHealthy)})
		return
	}
	writeJSON(w, http.StatusOK, s.health.Snapshot())
}

// handleMetrics serves Prometheus text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeError(w, http.StatusServiceUnavailable, "health monitor not configured")
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	exporter := NewPrometheusExporter(s.health, s.dispatcher, s.events)
	if err := exporter.WritePrometheus(w); err != nil {
		logging.WithComponent("gateway").Warn("metrics write failed", slog.Any("error", err))
	}
}

// handleStatus returns gateway status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running, startedAt := s.running, s.startedAt
	s.mu.RUnlock()

	status := map[string]interface{}{
		"version":  s.version,
		"running":  running,
		"watchers": s.watchers.Count(),
	}
	if !startedAt.IsZero() {
		status["uptime"] = time.Since(startedAt).Round(time.Second).String()
	}
	if s.dispatcher != nil {
		status["pending"] = s.dispatcher.Pending()
	}
	if s.flags != nil {
		status["autonomyEnabled"] = s.flags.IsAutonomyContinueEnabled()
	}
	writeJSON(w, http.StatusOK, status)
}

// ScheduleRequest is the body of POST /api/v1/schedule. Content wins over a
// tool result; with neither, the scheduler default applies.
type ScheduleRequest struct {
	autopilot.RunContext
	Content string          `json:"content,omitempty"`
	Tool    string          `json:"tool,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// ScheduleResponse is returned by POST /api/v1/schedule.
type ScheduleResponse struct {
	Accepted bool   `json:"accepted"`
	Content  string `json:"content,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "dispatcher not configured")
		return
	}

	var req ScheduleRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	content := req.Content
	if content == "" && req.Tool != "" {
		if s.followups == nil {
			writeError(w, http.StatusBadRequest, "follow-up generators not configured")
			return
		}
		generated, err := s.followups.Generate(req.Tool, req.Result)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		content = generated
	}

	ctx := logging.ContextWithSessionID(context.WithoutCancel(r.Context()), req.SessionID)
	if !s.dispatcher.Submit(ctx, autopilot.Request{Run: req.RunContext, Content: content}) {
		writeJSON(w, http.StatusServiceUnavailable, ScheduleResponse{Error: ErrQueueFull.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, ScheduleResponse{Accepted: true, Content: content})
}

// BacklogResponse is returned by GET /api/v1/sessions/{id}/backlog.
type BacklogResponse struct {
	SessionID string         `json:"sessionID"`
	Tasks     []backlog.Task `json:"tasks"`
	AutoTasks int            `json:"autoTasks"`
}

func (s *Server) handleBacklog(w http.ResponseWriter, r *http.Request) {
	if s.backlog == nil {
		writeError(w, http.StatusServiceUnavailable, "backlog not configured")
		return
	}
	sessionID := r.PathValue("id")
	if strings.TrimSpace(sessionID) == "" {
		writeError(w, http.StatusBadRequest, "session id required")
		return
	}

	tasks, err := s.backlog.Get(r.Context(), sessionID)
	if err != nil {
		logging.WithComponent("gateway").Warn("backlog read failed",
			slog.String("session_id", sessionID), slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "backlog unavailable")
		return
	}
	if tasks == nil {
		tasks = []backlog.Task{}
	}
	writeJSON(w, http.StatusOK, BacklogResponse{
		SessionID: sessionID,
		Tasks:     tasks,
		AutoTasks: autopilot.CountAutoTasks(tasks),
	})
}

// AutonomyState is the body of GET and POST /api/v1/autonomy.
type AutonomyState struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
	Changed bool   `json:"changed,omitempty"`
}

func (s *Server) handleGetAutonomy(w http.ResponseWriter, r *http.Request) {
	if s.flags == nil {
		writeError(w, http.StatusServiceUnavailable, "flag store not configured")
		return
	}
	writeJSON(w, http.StatusOK, AutonomyState{Enabled: s.flags.IsAutonomyContinueEnabled()})
}

func (s *Server) handleSetAutonomy(w http.ResponseWriter, r *http.Request) {
	if s.flags == nil {
		writeError(w, http.StatusServiceUnavailable, "flag store not configured")
		return
	}

	var req AutonomyState
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "operator"
	}

	changed := s.flags.SetAutonomyContinueEnabled(req.Enabled, reason)
	if changed {
		s.recorder.Record(telemetry.Event{
			Event:           telemetry.EventAutonomyToggled,
			AutonomyEnabled: req.Enabled,
			Reason:          reason,
		})
	}
	writeJSON(w, http.StatusOK, AutonomyState{
		Enabled: s.flags.IsAutonomyContinueEnabled(),
		Reason:  reason,
		Changed: changed,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alekspetrov/autonomy/internal/autopilot"
	"github.com/alekspetrov/autonomy/internal/telemetry"
)

// ErrQueueFull is returned by Client.Schedule when the gateway rejects a
// request because its dispatch queue is full.
var ErrQueueFull = errors.New("dispatch queue full")

// Client talks to a running gateway.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the gateway at baseURL
// (for example "http://127.0.0.1:9191"). token may be empty for local auth.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Health fetches /health.
func (c *Client) Health(ctx context.Context) (*autopilot.HealthSnapshot, error) {
	var snap autopilot.HealthSnapshot
	if err := c.do(ctx, http.MethodGet, "/health", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Autonomy reads the autonomy switch.
func (c *Client) Autonomy(ctx context.Context) (*AutonomyState, error) {
	var state AutonomyState
	if err := c.do(ctx, http.MethodGet, "/api/v1/autonomy", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SetAutonomy flips the autonomy switch.
func (c *Client) SetAutonomy(ctx context.Context, enabled bool, reason string) (*AutonomyState, error) {
	var state AutonomyState
	body := AutonomyState{Enabled: enabled, Reason: reason}
	if err := c.do(ctx, http.MethodPost, "/api/v1/autonomy", body, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Schedule submits a scheduling request. Acceptance only means the request
// was queued; the outcome shows up in the event stream.
func (c *Client) Schedule(ctx context.Context, req ScheduleRequest) (*ScheduleResponse, error) {
	var resp ScheduleResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/schedule", req, &resp)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusServiceUnavailable && se.Message == ErrQueueFull.Error() {
		return nil, ErrQueueFull
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Backlog reads a session backlog.
func (c *Client) Backlog(ctx context.Context, sessionID string) (*BacklogResponse, error) {
	var resp BacklogResponse
	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/backlog"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StatusError is a non-2xx gateway response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) authorize(h http.Header) {
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
}

// StreamEvents connects to /ws/events and calls fn for every event, starting
// with the recent history. It returns when ctx is cancelled or the
// connection drops.
func (c *Client) StreamEvents(ctx context.Context, fn func(telemetry.Event)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws/events"

	header := http.Header{}
	c.authorize(header)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event stream closed: %w", err)
		}
		switch msg.Type {
		case StreamRecent:
			for _, e := range msg.Events {
				fn(e)
			}
		case StreamEvent:
			if msg.Event != nil {
				fn(*msg.Event)
			}
		}
	}
}

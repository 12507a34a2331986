package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alekspetrov/autonomy/internal/logging"
	"github.com/alekspetrov/autonomy/internal/telemetry"
)

const (
	// wsPingInterval is the interval between ping frames sent to the client.
	wsPingInterval = 30 * time.Second
	// wsPongTimeout is how long to wait for a pong response before closing.
	wsPongTimeout = 10 * time.Second
	// wsWriteTimeout is the deadline for writing a message to the client.
	wsWriteTimeout = 5 * time.Second
	// wsInitialEventCount is the number of recent events sent on connect.
	wsInitialEventCount = 50
)

// Stream message types.
const (
	StreamRecent = "recent"
	StreamEvent  = "event"
)

// StreamMessage is one frame on /ws/events. The first frame is a "recent"
// batch in chronological order; each later frame carries a single event.
type StreamMessage struct {
	Type   string            `json:"type"`
	Events []telemetry.Event `json:"events,omitempty"`
	Event  *telemetry.Event  `json:"event,omitempty"`
}

// handleEventsWebSocket streams telemetry events to the client.
func (s *Server) handleEventsWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}

	log := logging.WithComponent("gateway")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("events WS upgrade error", slog.Any("error", err))
		return
	}

	client := s.watchers.Add(conn, r.RemoteAddr)
	defer s.watchers.Remove(client.ID)
	log.Info("event stream connected", slog.String("watcher_id", client.ID), slog.String("remote", r.RemoteAddr))

	// Subscribe before reading history so nothing falls in between. An event
	// recorded in that window shows up in both; sent holds the history IDs so
	// the live loop skips them.
	sub := s.events.Subscribe()
	defer s.events.Unsubscribe(sub)

	recent := s.events.Recent(wsInitialEventCount)
	if recent == nil {
		recent = []telemetry.Event{}
	}
	sent := make(map[string]struct{}, len(recent))
	for _, e := range recent {
		if e.ID != "" {
			sent[e.ID] = struct{}{}
		}
	}
	if err := client.writeJSON(StreamMessage{Type: StreamRecent, Events: recent}); err != nil {
		log.Warn("events WS initial send failed", slog.Any("error", err))
		return
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))

	// Read pump: clients send nothing; this detects disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					log.Warn("events WS read error", slog.Any("error", err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			if _, dup := sent[event.ID]; dup {
				delete(sent, event.ID)
				continue
			}
			if err := client.writeJSON(StreamMessage{Type: StreamEvent, Event: &event}); err != nil {
				log.Debug("events WS write error", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			if err := client.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

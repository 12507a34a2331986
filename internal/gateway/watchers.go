package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// watcher is one client connected to the event stream.
type watcher struct {
	ID          string
	Remote      string
	ConnectedAt time.Time

	conn *websocket.Conn
	mu   sync.Mutex
}

// writeJSON serializes writes; gorilla connections allow one writer at a time.
func (w *watcher) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(v)
}

func (w *watcher) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

// watcherSet tracks connected event-stream clients.
type watcherSet struct {
	watchers map[string]*watcher
	mu       sync.RWMutex
}

func newWatcherSet() *watcherSet {
	return &watcherSet{watchers: make(map[string]*watcher)}
}

func (s *watcherSet) Add(conn *websocket.Conn, remote string) *watcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &watcher{
		ID:          uuid.New().String(),
		Remote:      remote,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
	s.watchers[w.ID] = w
	return w
}

func (s *watcherSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.watchers[id]; ok {
		_ = w.conn.Close()
		delete(s.watchers, id)
	}
}

func (s *watcherSet) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers)
}

// CloseAll disconnects every watcher.
func (s *watcherSet) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range s.watchers {
		_ = w.conn.Close()
		delete(s.watchers, id)
	}
}

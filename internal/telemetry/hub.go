package telemetry

import (
	"sync"
)

const (
	defaultHubHistory    = 200
	defaultSubscriberBuf = 64
)

// Hub is a Recorder that keeps a ring of recent events and fans them out to
// live subscribers. Slow subscribers lose events rather than block recording.
type Hub struct {
	mu      sync.RWMutex
	recent  []Event
	limit   int
	subs    map[chan Event]struct{}
	dropped int64
}

var _ Recorder = (*Hub)(nil)

// NewHub creates a hub retaining up to history recent events.
func NewHub(history int) *Hub {
	if history <= 0 {
		history = defaultHubHistory
	}
	return &Hub{
		recent: make([]Event, 0, history),
		limit:  history,
		subs:   make(map[chan Event]struct{}),
	}
}

// Record stores the event and delivers it to every subscriber without blocking.
func (h *Hub) Record(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.recent = append(h.recent, event)
	if len(h.recent) > h.limit {
		h.recent = h.recent[len(h.recent)-h.limit:]
	}

	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.dropped++
		}
	}
}

// Recent returns up to limit of the most recent events, oldest first.
func (h *Hub) Recent(limit int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	start := 0
	if limit > 0 && len(h.recent) > limit {
		start = len(h.recent) - limit
	}
	out := make([]Event, len(h.recent)-start)
	copy(out, h.recent[start:])
	return out
}

// Subscribe registers a new subscriber channel.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, defaultSubscriberBuf)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

package autopilot

import (
	"strconv"
	"sync"
	"time"

	"github.com/alekspetrov/autonomy/internal/backlog"
)

// IDSource hands out auto-<n> task ids. n starts from wall-clock
// milliseconds, never repeats within the process, and always lands past
// every auto id already present in the backlog it is given.
type IDSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDSource creates an IDSource. A nil clock means time.Now.
func NewIDSource(now func() time.Time) *IDSource {
	return &IDSource{now: clockOrNow(now)}
}

// Next returns a fresh id that does not collide with existing.
func (s *IDSource) Next(existing []backlog.Task) string {
	n := s.now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= s.last {
		n = s.last + 1
	}
	for _, t := range existing {
		if v, ok := parseAutoID(t.ID); ok && v >= n {
			n = v + 1
		}
	}
	s.last = n
	return autoIDPrefix + strconv.FormatInt(n, 10)
}

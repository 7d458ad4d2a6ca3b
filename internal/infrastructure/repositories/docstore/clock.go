package docstore

import (
	"sync"
	"time"

	"chatgate/internal/core/domain"
)

// Clock hands out strictly increasing UTC timestamps, even when the wall
// clock stalls or steps backwards.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockAfter returns a clock whose first tick is later than last. Stores
// that persist data seed it with their newest stored timestamp.
func NewClockAfter(last time.Time) *Clock {
	return &Clock{last: last, now: time.Now}
}

func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Round(0)
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}

// ResolveServerTimestamps returns a copy of fields with every
// domain.ServerTimestamp placeholder replaced by ts.
func ResolveServerTimestamps(fields domain.Fields, ts time.Time) domain.Fields {
	out := fields.Clone()
	for k, v := range out {
		if domain.IsServerTimestamp(v) {
			out[k] = ts
		}
	}
	return out
}

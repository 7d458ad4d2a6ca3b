package services

import (
	"sync"
	"time"
)

type metricCounts struct {
	opened        map[string]int
	closed        map[string]int
	failed        map[string]int
	granted       int
	denied        int
	appended      int
	appendFailed  int
	tokenRequests int
	roomsCreated  int
}

type recordingMetrics struct {
	mu sync.Mutex
	c  metricCounts
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{c: metricCounts{
		opened: make(map[string]int),
		closed: make(map[string]int),
		failed: make(map[string]int),
	}}
}

func (m *recordingMetrics) record(fn func(c *metricCounts)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.c)
}

func (m *recordingMetrics) SubscriptionOpened(kind string) {
	m.record(func(c *metricCounts) { c.opened[kind]++ })
}

func (m *recordingMetrics) SubscriptionClosed(kind string) {
	m.record(func(c *metricCounts) { c.closed[kind]++ })
}

func (m *recordingMetrics) SubscriptionFailed(kind string) {
	m.record(func(c *metricCounts) { c.failed[kind]++ })
}

func (m *recordingMetrics) AccessEvaluated(granted bool) {
	m.record(func(c *metricCounts) {
		if granted {
			c.granted++
		} else {
			c.denied++
		}
	})
}

func (m *recordingMetrics) MessageAppended() {
	m.record(func(c *metricCounts) { c.appended++ })
}

func (m *recordingMetrics) MessageAppendFailed() {
	m.record(func(c *metricCounts) { c.appendFailed++ })
}

func (m *recordingMetrics) TokenRequested(bool, time.Duration) {
	m.record(func(c *metricCounts) { c.tokenRequests++ })
}

func (m *recordingMetrics) RoomCreated() {
	m.record(func(c *metricCounts) { c.roomsCreated++ })
}

func (m *recordingMetrics) counts() metricCounts {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.c
	out.opened = copyCounts(m.c.opened)
	out.closed = copyCounts(m.c.closed)
	out.failed = copyCounts(m.c.failed)
	return out
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

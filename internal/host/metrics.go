package host

import (
	"sync"
	"time"
)

// MetricsSink is the host capability that records per-strategy timer
// readings and lets the Executor reset a strategy's metrics on (re)start.
type MetricsSink interface {
	ResetStrategy(name string)
	ReportTimings(name string, cooperative, wall time.Duration)
}

// strategyTimings is the latest timer reading recorded for one strategy.
type strategyTimings struct {
	Cooperative time.Duration
	Wall        time.Duration
	Samples     int64
}

// InMemoryMetrics is a minimal MetricsSink suitable for local runs and
// tests; production deployments can swap in a Prometheus-backed sink
// behind the same interface.
type InMemoryMetrics struct {
	mu      sync.Mutex
	timings map[string]*strategyTimings
}

// NewInMemoryMetrics returns an empty InMemoryMetrics sink.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{timings: make(map[string]*strategyTimings)}
}

// ResetStrategy drops any recorded timings for name.
func (m *InMemoryMetrics) ResetStrategy(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timings, name)
}

// ReportTimings records one callback's cooperative/wall elapsed durations.
func (m *InMemoryMetrics) ReportTimings(name string, cooperative, wall time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timings[name]
	if !ok {
		t = &strategyTimings{}
		m.timings[name] = t
	}
	t.Cooperative = cooperative
	t.Wall = wall
	t.Samples++
}

// Snapshot returns the latest timing sample recorded for name.
func (m *InMemoryMetrics) Snapshot(name string) (cooperative, wall time.Duration, samples int64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, present := m.timings[name]
	if !present {
		return 0, 0, 0, false
	}
	return t.Cooperative, t.Wall, t.Samples, true
}

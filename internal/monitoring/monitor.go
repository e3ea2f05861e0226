package monitoring

import (
	"sync"
	"time"
)

// Monitor keeps an in-process snapshot of assistant activity for /api/metrics.
type Monitor struct {
	metrics      map[string]interface{}
	metricsMutex sync.RWMutex
	startTime    time.Time
}

// NewMonitor creates a new monitoring instance
func NewMonitor() *Monitor {
	return &Monitor{
		metrics:   make(map[string]interface{}),
		startTime: time.Now(),
	}
}

// RecordMetric records a metric value
func (m *Monitor) RecordMetric(name string, value interface{}) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics[name] = value
}

// Incr adds one to a counter metric, starting it at zero when absent.
func (m *Monitor) Incr(name string) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	n, _ := m.metrics[name].(int64)
	m.metrics[name] = n + 1
}

// GetMetric returns a specific metric value
func (m *Monitor) GetMetric(name string) (interface{}, bool) {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()
	value, exists := m.metrics[name]
	return value, exists
}

// GetMetrics returns a copy of all current metrics plus uptime.
func (m *Monitor) GetMetrics() map[string]interface{} {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()

	metrics := make(map[string]interface{}, len(m.metrics)+1)
	for k, v := range m.metrics {
		metrics[k] = v
	}
	metrics["uptime_seconds"] = time.Since(m.startTime).Seconds()

	return metrics
}

// Reset clears all metrics
func (m *Monitor) Reset() {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics = make(map[string]interface{})
}

// RecordSession stores the outcome of one assistant session under a
// channel-scoped prefix.
func (m *Monitor) RecordSession(channel, outcome string, elapsed time.Duration) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()

	prefix := "sessions_" + channel + "_"
	n, _ := m.metrics[prefix+outcome].(int64)
	m.metrics[prefix+outcome] = n + 1
	m.metrics[prefix+"last_duration_ms"] = elapsed.Milliseconds()
	m.metrics[prefix+"last_finished"] = time.Now().Format(time.RFC3339)
}

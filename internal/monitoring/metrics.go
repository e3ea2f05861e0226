package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exports assistant metrics to Prometheus and mirrors counters into an
// optional Monitor snapshot.
type Collector struct {
	registry *prometheus.Registry
	metrics  map[string]prometheus.Collector
	monitor  *Monitor
}

// NewCollector creates a collector with its own registry.
func NewCollector(monitor *Monitor) *Collector {
	registry := prometheus.NewRegistry()

	sessions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chefassist_sessions_total",
			Help: "Assistant sessions by channel and terminal state",
		},
		[]string{"channel", "outcome"},
	)

	sessionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chefassist_session_duration_seconds",
			Help:    "Time from request to terminal state",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"channel"},
	)

	toolDispatches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chefassist_tool_dispatches_total",
			Help: "Tool dispatches by tool, channel and result status",
		},
		[]string{"tool", "channel", "status"},
	)

	toolLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chefassist_tool_duration_seconds",
			Help:    "Tool execution time",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	engineLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chefassist_engine_call_duration_seconds",
			Help:    "Completion engine round-trip time",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"result"},
	)

	metrics := map[string]prometheus.Collector{
		"sessions":         sessions,
		"session_duration": sessionDuration,
		"tool_dispatches":  toolDispatches,
		"tool_latency":     toolLatency,
		"engine_latency":   engineLatency,
	}

	for _, metric := range metrics {
		registry.MustRegister(metric)
	}

	return &Collector{
		registry: registry,
		metrics:  metrics,
		monitor:  monitor,
	}
}

// ToolDispatched records one dispatch outcome.
func (mc *Collector) ToolDispatched(tool, channel, status string, elapsed time.Duration) {
	if counter, ok := mc.metrics["tool_dispatches"].(*prometheus.CounterVec); ok {
		counter.WithLabelValues(tool, channel, status).Inc()
	}
	if histogram, ok := mc.metrics["tool_latency"].(*prometheus.HistogramVec); ok {
		histogram.WithLabelValues(tool).Observe(elapsed.Seconds())
	}
	if mc.monitor != nil {
		mc.monitor.Incr("tool_dispatches_" + status)
	}
}

// SessionFinished records a session's terminal state.
func (mc *Collector) SessionFinished(channel, outcome string, elapsed time.Duration) {
	if counter, ok := mc.metrics["sessions"].(*prometheus.CounterVec); ok {
		counter.WithLabelValues(channel, outcome).Inc()
	}
	if histogram, ok := mc.metrics["session_duration"].(*prometheus.HistogramVec); ok {
		histogram.WithLabelValues(channel).Observe(elapsed.Seconds())
	}
	if mc.monitor != nil {
		mc.monitor.RecordSession(channel, outcome, elapsed)
	}
}

// EngineCalled records one completion engine round trip.
func (mc *Collector) EngineCalled(elapsed time.Duration, err error) {
	label := "ok"
	if err != nil {
		label = "error"
	}
	if histogram, ok := mc.metrics["engine_latency"].(*prometheus.HistogramVec); ok {
		histogram.WithLabelValues(label).Observe(elapsed.Seconds())
	}
	if mc.monitor != nil {
		mc.monitor.Incr("engine_calls_" + label)
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (mc *Collector) Registry() *prometheus.Registry {
	return mc.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (mc *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

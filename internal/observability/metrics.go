// Package observability holds the Prometheus metrics for the chat
// client. Metrics live on a custom registry (no global state) and are
// surfaced through the REPL's /stats command.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for the client.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Exchange metrics.
	ExchangesTotal   *prometheus.CounterVec
	ExchangeDuration prometheus.Histogram

	// Store metrics.
	ThreadsStored prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics
// registered on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		ExchangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rafiq",
			Subsystem: "chat",
			Name:      "exchanges_total",
			Help:      "Total chat exchanges by outcome.",
		}, []string{"status"}),

		ExchangeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rafiq",
			Subsystem: "chat",
			Name:      "exchange_duration_seconds",
			Help:      "Round-trip duration of a chat exchange in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}),

		ThreadsStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rafiq",
			Subsystem: "store",
			Name:      "threads_stored",
			Help:      "Number of threads currently retained.",
		}),
	}

	reg.MustRegister(
		m.ExchangesTotal,
		m.ExchangeDuration,
		m.ThreadsStored,
	)

	return m
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lwbtt0915/joyrpc/pkg/filter"
)

var _ filter.Recorder = (*Metrics)(nil)

// Metrics is the process-wide collection of joyrpc Prometheus metrics.
type Metrics struct {
	// RPC call metrics
	CallsTotal       *prometheus.CounterVec
	CallDuration     *prometheus.HistogramVec
	CallsInFlight    prometheus.Gauge

	// Channel/transport metrics
	ChannelsOpen     *prometheus.GaugeVec
	FramesSent       *prometheus.CounterVec
	FramesReceived   *prometheus.CounterVec

	// Registry metrics
	RegistrySubscribers *prometheus.GaugeVec
	RegistryEvents      *prometheus.CounterVec

	// Runtime metrics
	MemoryUsage *prometheus.GaugeVec
	Goroutines  prometheus.Gauge

	// Service info
	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics builds a fresh Metrics registered under namespace/subsystem.
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		CallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "calls_total",
				Help:      "Total number of RPC calls by interface, method and outcome",
			},
			[]string{"interface", "method", "outcome"},
		),

		CallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "call_duration_seconds",
				Help:      "Duration of RPC calls",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"interface", "method"},
		),

		CallsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "calls_in_flight",
				Help:      "Current number of RPC calls being processed",
			},
		),

		ChannelsOpen: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "channels_open",
				Help:      "Current number of open Channels by node address",
			},
			[]string{"node"},
		),

		FramesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "frames_sent_total",
				Help:      "Total number of frames written to a Channel",
			},
			[]string{"node"},
		),

		FramesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "frames_received_total",
				Help:      "Total number of frames read from a Channel",
			},
			[]string{"node"},
		),

		RegistrySubscribers: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "registry_subscribers",
				Help:      "Current number of active Registry subscriptions",
			},
			[]string{"alias"},
		),

		RegistryEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "registry_events_total",
				Help:      "Total number of Registry add/remove events delivered",
			},
			[]string{"alias", "kind"},
		),

		MemoryUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage",
			},
			[]string{"type"},
		),

		Goroutines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Current number of goroutines",
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service build/version information",
			},
			[]string{"version", "environment"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the process-wide Metrics, lazily initializing it under the
// "joyrpc" namespace if InitMetrics was never called explicitly.
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("joyrpc", "")
	}
	return defaultMetrics
}

// RecordCall implements filter.Recorder, letting MetricsFilter report
// every call's outcome and latency without pkg/filter importing Prometheus.
func (m *Metrics) RecordCall(iface, method, outcome string, duration time.Duration) {
	m.CallsTotal.WithLabelValues(iface, method, outcome).Inc()
	m.CallDuration.WithLabelValues(iface, method).Observe(duration.Seconds())
}

// RecordFrameSent records one outbound frame on the Channel to node.
func (m *Metrics) RecordFrameSent(node string) {
	m.FramesSent.WithLabelValues(node).Inc()
}

// RecordFrameReceived records one inbound frame on the Channel from node.
func (m *Metrics) RecordFrameReceived(node string) {
	m.FramesReceived.WithLabelValues(node).Inc()
}

// SetChannelsOpen reports the current Channel count for node.
func (m *Metrics) SetChannelsOpen(node string, count int) {
	m.ChannelsOpen.WithLabelValues(node).Set(float64(count))
}

// RecordRegistryEvent records one Registry add/remove notification for alias.
func (m *Metrics) RecordRegistryEvent(alias, kind string) {
	m.RegistryEvents.WithLabelValues(alias, kind).Inc()
}

// SetRegistrySubscribers reports the current subscriber count for alias.
func (m *Metrics) SetRegistrySubscribers(alias string, count int) {
	m.RegistrySubscribers.WithLabelValues(alias).Set(float64(count))
}

// SetServiceInfo publishes the running version/environment as a constant gauge.
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler returns the HTTP handler serving the default registry at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer runs a dedicated HTTP server exposing /metrics and
// /health on port, blocking until the listener fails.
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}

// Package metrics provides Prometheus metrics for capture, analysis and persistence.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics implements capture.Metrics and analysis.Metrics and is registered
// as a single prometheus.Collector.
type Metrics struct {
	framesCaptured  prometheus.Counter
	framesDiscarded prometheus.Counter
	captureFaults   *prometheus.CounterVec

	activeSessions prometheus.Gauge

	analysisTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec

	persistenceFailures *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the metrics and registers them, plus the Go and process
// collectors, on a fresh registry.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}
	return NewWithRegistry(registry)
}

// NewWithRegistry creates the metrics on an existing registry.
func NewWithRegistry(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register consult-recorder metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.framesCaptured = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consult_capture_frames_total",
		Help: "Audio frames buffered while recording.",
	})
	m.framesDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consult_capture_frames_discarded_total",
		Help: "Audio frames delivered by the device but dropped (paused or stopped).",
	})
	m.captureFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consult_capture_faults_total",
			Help: "Device read errors, partitioned by whether they ended the session.",
		},
		[]string{"terminal"},
	)

	m.activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "consult_sessions_active",
		Help: "Capture sessions currently registered.",
	})

	m.analysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consult_analysis_requests_total",
			Help: "Analysis attempts partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	m.analysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consult_analysis_duration_seconds",
			Help:    "Time taken by one analysis round trip.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
		},
		[]string{"outcome"},
	)

	m.persistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consult_persistence_failures_total",
			Help: "Failures writing recordings or consultations, partitioned by stage.",
		},
		[]string{"stage"},
	)
}

// Registry returns the registry the metrics were registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) FrameAccepted()  { m.framesCaptured.Inc() }
func (m *Metrics) FrameDiscarded() { m.framesDiscarded.Inc() }

func (m *Metrics) Fault(terminal bool) {
	m.captureFaults.WithLabelValues(strconv.FormatBool(terminal)).Inc()
}

func (m *Metrics) SessionOpened() { m.activeSessions.Inc() }
func (m *Metrics) SessionClosed() { m.activeSessions.Dec() }

func (m *Metrics) ObserveAnalysis(outcome string, d time.Duration) {
	m.analysisTotal.WithLabelValues(outcome).Inc()
	m.analysisDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// PersistenceFailed counts a failed write at stage ("recording", "consultation").
func (m *Metrics) PersistenceFailed(stage string) {
	m.persistenceFailures.WithLabelValues(stage).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.framesCaptured.Describe(ch)
	m.framesDiscarded.Describe(ch)
	m.captureFaults.Describe(ch)
	m.activeSessions.Describe(ch)
	m.analysisTotal.Describe(ch)
	m.analysisDuration.Describe(ch)
	m.persistenceFailures.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.framesCaptured.Collect(ch)
	m.framesDiscarded.Collect(ch)
	m.captureFaults.Collect(ch)
	m.activeSessions.Collect(ch)
	m.analysisTotal.Collect(ch)
	m.analysisDuration.Collect(ch)
	m.persistenceFailures.Collect(ch)
}

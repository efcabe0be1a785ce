// Package metrics exposes engine and HTTP activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/session"
)

var _ session.Recorder = (*Manager)(nil)

type Manager struct {
	// counters
	CounterRequests        *prometheus.CounterVec
	CounterFrames          *prometheus.CounterVec
	CounterReps            *prometheus.CounterVec
	CounterFaults          *prometheus.CounterVec
	CounterAbandoned       *prometheus.CounterVec
	CounterSessionsStarted *prometheus.CounterVec
	CounterSessionsEnded   *prometheus.CounterVec

	// gauges
	GaugeActiveSessions prometheus.Gauge

	// histograms
	HistRepPoints *prometheus.HistogramVec
}

func NewTestManager() *Manager {
	return NewManager("repcoach", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("repcoach", "test", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Manager{
		CounterRequests:        counter("requests_total", "The total number of HTTP requests", "method", "status"),
		CounterFrames:          counter("frames_processed_total", "Landmark frames processed", "exercise"),
		CounterReps:            counter("reps_total", "Completed repetitions", "exercise"),
		CounterFaults:          counter("posture_faults_total", "Posture faults on completed repetitions", "exercise", "fault"),
		CounterAbandoned:       counter("cycles_abandoned_total", "Repetitions dropped after tracking was lost", "exercise"),
		CounterSessionsStarted: counter("sessions_started_total", "Sessions started", "exercise"),
		CounterSessionsEnded:   counter("sessions_ended_total", "Sessions ended", "exercise"),
		GaugeActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_sessions",
			Help:      "Sessions currently accepting frames",
		}),
		HistRepPoints: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rep_points",
			Help:      "Points awarded per repetition",
			Buckets:   []float64{0, 2, 4, 6, 8, 10},
		}, []string{"exercise"}),
	}
}

func (m *Manager) FrameProcessed(kind models.Exercise) {
	m.CounterFrames.WithLabelValues(string(kind)).Inc()
}

func (m *Manager) RepCompleted(ev models.RepEvent) {
	kind := string(ev.Exercise)
	m.CounterReps.WithLabelValues(kind).Inc()
	m.HistRepPoints.WithLabelValues(kind).Observe(float64(ev.Points))
	for _, w := range ev.Warnings {
		m.CounterFaults.WithLabelValues(kind, w).Inc()
	}
}

func (m *Manager) CycleAbandoned(kind models.Exercise) {
	m.CounterAbandoned.WithLabelValues(string(kind)).Inc()
}

func (m *Manager) SessionStarted(kind models.Exercise) {
	m.CounterSessionsStarted.WithLabelValues(string(kind)).Inc()
	m.GaugeActiveSessions.Inc()
}

func (m *Manager) SessionEnded(kind models.Exercise) {
	m.CounterSessionsEnded.WithLabelValues(string(kind)).Inc()
	m.GaugeActiveSessions.Dec()
}

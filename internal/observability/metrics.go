package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/convergectl/internal/scenario"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convergectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "convergectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convergectl",
			Subsystem: "scenario",
			Name:      "runs_total",
			Help:      "Finished scenario runs by result.",
		},
		[]string{"result"},
	)
	phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "convergectl",
			Subsystem: "scenario",
			Name:      "phase_duration_seconds",
			Help:      "Wall time of each barrier phase across all actors.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"phase", "result"},
	)
	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convergectl",
			Subsystem: "scenario",
			Name:      "steps_total",
			Help:      "Per-actor phase steps by result.",
		},
		[]string{"phase", "actor", "result"},
	)
	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "convergectl",
			Subsystem: "scenario",
			Name:      "step_duration_seconds",
			Help:      "Per-actor phase step duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
		},
		[]string{"phase"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, runsTotal, phaseDuration, stepsTotal, stepDuration)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordStep(phase, actor string, duration time.Duration, err error) {
	RegisterMetrics()
	stepsTotal.WithLabelValues(phase, actor, resultLabel(err)).Inc()
	stepDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

func RecordPhase(phase string, duration time.Duration, err error) {
	RegisterMetrics()
	phaseDuration.WithLabelValues(phase, resultLabel(err)).Observe(duration.Seconds())
}

func RecordRun(err error) {
	RegisterMetrics()
	runsTotal.WithLabelValues(resultLabel(err)).Inc()
}

// MetricsObserver feeds scenario events into the Prometheus collectors.
type MetricsObserver struct{}

func (MetricsObserver) Observe(ev scenario.Event) {
	switch ev.Kind {
	case scenario.EventStepFinished:
		RecordStep(ev.Phase, ev.Actor, ev.Duration, ev.Err)
	case scenario.EventPhaseFinished:
		RecordPhase(ev.Phase, ev.Duration, ev.Err)
	case scenario.EventRunFinished:
		RecordRun(ev.Err)
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

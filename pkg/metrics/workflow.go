package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"slackagent/pkg/workflow"
)

// Namespace prefixes every service metric.
const Namespace = "slackagent"

// Workflow implements workflow.Observer on Prometheus collectors.
type Workflow struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	stepDuration    *prometheus.HistogramVec
	stepFailures    *prometheus.CounterVec
	replies         *prometheus.CounterVec
	inflight        prometheus.Gauge
}

// NewWorkflow registers the workflow collectors on reg.
func NewWorkflow(reg prometheus.Registerer) *Workflow {
	f := promauto.With(reg)
	return &Workflow{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Requests processed, by route.",
		}, []string{"route", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end workflow duration.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"route"}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of each workflow step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		stepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "step_failures_total",
			Help:      "Recorded step failures, by kind.",
		}, []string{"kind"}),
		replies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "replies_total",
			Help:      "Replies posted back to the chat platform.",
		}, []string{"status"}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "inflight_requests",
			Help:      "Requests currently inside the workflow.",
		}),
	}
}

func (w *Workflow) RequestStarted() { w.inflight.Inc() }

func (w *Workflow) RequestFinished(route string, failed bool, d time.Duration) {
	w.inflight.Dec()
	status := "ok"
	if failed {
		status = "degraded"
	}
	w.requests.WithLabelValues(route, status).Inc()
	w.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (w *Workflow) StepFinished(step string, d time.Duration) {
	w.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (w *Workflow) StepFailed(kind workflow.ErrorKind) {
	w.stepFailures.WithLabelValues(kind.String()).Inc()
}

// ObserveReply counts a reply delivery attempt.
func (w *Workflow) ObserveReply(delivered bool) {
	status := "sent"
	if !delivered {
		status = "failed"
	}
	w.replies.WithLabelValues(status).Inc()
}

var _ workflow.Observer = (*Workflow)(nil)

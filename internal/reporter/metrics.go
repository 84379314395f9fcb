package reporter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes used as the "outcome" label.
const (
	OutcomeSuccess   = "success"
	OutcomeFatal     = "fatal"
	OutcomeExhausted = "retries_exhausted"
)

// Metrics are the reporter's self-monitoring series.
type Metrics struct {
	Batches    *prometheus.CounterVec
	Datapoints *prometheus.CounterVec
	Retries    prometheus.Counter
	Duration   prometheus.Histogram
}

// NewMetrics registers the reporter series on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forwarder",
			Subsystem: "reporter",
			Name:      "batches_total",
			Help:      "Batches by delivery outcome.",
		}, []string{"outcome"}),
		Datapoints: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forwarder",
			Subsystem: "reporter",
			Name:      "datapoints_total",
			Help:      "Datapoints by delivery outcome.",
		}, []string{"outcome"}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "forwarder",
			Subsystem: "reporter",
			Name:      "retries_total",
			Help:      "Retried delivery attempts.",
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "forwarder",
			Subsystem: "reporter",
			Name:      "send_duration_seconds",
			Help:      "Time to deliver one batch, retries included.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observe(outcome string, datapoints int) {
	m.Batches.WithLabelValues(outcome).Inc()
	m.Datapoints.WithLabelValues(outcome).Add(float64(datapoints))
}

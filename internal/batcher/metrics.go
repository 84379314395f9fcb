package batcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label.
const (
	ReasonIngestFull = "ingest_queue_full"
	ReasonOverflow   = "pending_overflow"
)

// Metrics are the batcher's self-monitoring series.
type Metrics struct {
	Released prometheus.Counter
	Dropped  *prometheus.CounterVec
	Pending  prometheus.Gauge
}

// NewMetrics registers the batcher series on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Released: f.NewCounter(prometheus.CounterOpts{
			Namespace: "forwarder",
			Subsystem: "batcher",
			Name:      "batches_released_total",
			Help:      "Batches released to the transmit stage.",
		}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forwarder",
			Subsystem: "batcher",
			Name:      "datapoints_dropped_total",
			Help:      "Datapoints dropped before transmission.",
		}, []string{"reason"}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "forwarder",
			Subsystem: "batcher",
			Name:      "pending_batches",
			Help:      "Released batches waiting for the transmit stage.",
		}),
	}
}

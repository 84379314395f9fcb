// Package backend connects the pipeline stages: reserved namespace filter,
// normalizer, batcher and the sender behind it.
package backend

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/and161185/metrics-forwarder/internal/batcher"
	"github.com/and161185/metrics-forwarder/internal/clock"
	"github.com/and161185/metrics-forwarder/internal/normalize"
	"github.com/and161185/metrics-forwarder/model"
)

// Options configure a Backend.
type Options struct {
	ReservedNamespace string // Buckets whose root namespace starts with it are dropped.
	Batcher           batcher.Config
	Sender            batcher.Sender
	Clock             clock.Clock
	Logger            *zap.SugaredLogger
	Registerer        prometheus.Registerer
}

// Backend accepts buckets from the host and forwards their datapoints.
type Backend struct {
	reserved   string
	normalizer *normalize.Normalizer
	batcher    *batcher.Batcher
	logger     *zap.SugaredLogger
	active     atomic.Bool

	buckets  *prometheus.CounterVec
	filtered prometheus.Counter
}

// New builds the pipeline and starts it.
func New(opts Options) (*Backend, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	b, err := batcher.New(opts.Batcher, opts.Sender, opts.Clock, logger, batcher.NewMetrics(opts.Registerer))
	if err != nil {
		return nil, fmt.Errorf("batcher: %w", err)
	}

	f := promauto.With(opts.Registerer)
	be := &Backend{
		reserved:   opts.ReservedNamespace,
		normalizer: normalize.New(logger),
		batcher:    b,
		logger:     logger,
		buckets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forwarder",
			Name:      "buckets_total",
			Help:      "Buckets accepted, by kind.",
		}, []string{"kind"}),
		filtered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "forwarder",
			Name:      "buckets_filtered_total",
			Help:      "Buckets dropped because of the reserved namespace.",
		}),
	}

	b.Start()
	be.active.Store(true)
	return be, nil
}

// Ingest normalizes bucket and queues its datapoints. It never blocks on
// delivery. It returns false only once the backend has been closed;
// filtered buckets are accepted.
func (be *Backend) Ingest(bucket model.Bucket) bool {
	if !be.active.Load() {
		return false
	}
	if bucket == nil {
		return true
	}
	if be.reserved != "" && strings.HasPrefix(bucket.Namespace(), be.reserved) {
		be.filtered.Inc()
		return true
	}

	be.buckets.WithLabelValues(string(bucket.Kind())).Inc()
	for _, dp := range be.normalizer.Normalize(bucket) {
		if !be.batcher.Ingest(dp) && !be.active.Load() {
			return false
		}
	}
	return true
}

// Close stops accepting buckets and starts draining. Wait on Done.
func (be *Backend) Close() {
	if be.active.CompareAndSwap(true, false) {
		be.logger.Infow("backend closing, draining pending batches", "pending", be.batcher.Pending())
	}
	be.batcher.Close()
}

// Done is closed once every accepted datapoint has been handed to the sender.
func (be *Backend) Done() <-chan struct{} {
	return be.batcher.Done()
}

// IsActive reports whether the backend accepts buckets.
func (be *Backend) IsActive() bool {
	return be.active.Load()
}

// Package batcher groups datapoints into bounded batches and hands them to a
// single transmit stage.
//
// One goroutine owns the open batch. Ingest only enqueues into its inbox, so
// producers never block on transmission. A batch is released when it reaches
// MaxBatchSize or when MaxTimeBetweenBatches passes without a release. The
// timer is re-armed when a send completes, so a slow endpoint does not cause
// a burst of timer releases. Released batches wait in a bounded Queue and are
// sent one at a time, in release order.
package batcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/metrics-forwarder/internal/clock"
	"github.com/and161185/metrics-forwarder/internal/errs"
	"github.com/and161185/metrics-forwarder/model"
)

// Sender delivers one batch. It handles its own failures; the batcher
// never retries.
type Sender interface {
	Send(ctx context.Context, batch []model.Datapoint)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, batch []model.Datapoint)

func (f SenderFunc) Send(ctx context.Context, batch []model.Datapoint) { f(ctx, batch) }

// Config holds the batching limits.
type Config struct {
	MaxBatchSize          int
	MaxTimeBetweenBatches time.Duration
	MaxPendingBatches     int
	IngestQueueSize       int
}

// Validate reports a non-positive limit as errs.ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.MaxBatchSize <= 0:
		return fmt.Errorf("%w: max batch size must be positive, got %d", errs.ErrInvalidConfig, c.MaxBatchSize)
	case c.MaxTimeBetweenBatches <= 0:
		return fmt.Errorf("%w: max time between batches must be positive, got %s", errs.ErrInvalidConfig, c.MaxTimeBetweenBatches)
	case c.MaxPendingBatches <= 0:
		return fmt.Errorf("%w: max pending batches must be positive, got %d", errs.ErrInvalidConfig, c.MaxPendingBatches)
	case c.IngestQueueSize <= 0:
		return fmt.Errorf("%w: ingest queue size must be positive, got %d", errs.ErrInvalidConfig, c.IngestQueueSize)
	}
	return nil
}

// Batcher accumulates datapoints and releases them as batches.
type Batcher struct {
	cfg     Config
	sender  Sender
	clk     clock.Clock
	logger  *zap.SugaredLogger
	metrics *Metrics

	inbox chan model.Datapoint
	queue *Queue
	sent  chan struct{}

	mu     sync.RWMutex
	closed bool

	start     sync.Once
	collected chan struct{}
	done      chan struct{}
}

// New validates cfg and returns a Batcher. Call Start to begin processing.
// A nil clk uses the real clock, nil logger and metrics are replaced by
// no-op ones.
func New(cfg Config, sender Sender, clk clock.Clock, logger *zap.SugaredLogger, metrics *Metrics) (*Batcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, fmt.Errorf("%w: nil sender", errs.ErrInvalidConfig)
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Batcher{
		cfg:       cfg,
		sender:    sender,
		clk:       clk,
		logger:    logger,
		metrics:   metrics,
		inbox:     make(chan model.Datapoint, cfg.IngestQueueSize),
		queue:     NewQueue(cfg.MaxPendingBatches),
		sent:      make(chan struct{}, 1),
		collected: make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start launches the collector and transmit goroutines. Further calls are no-ops.
func (b *Batcher) Start() {
	b.start.Do(func() {
		go b.collect()
		go b.transmit()
	})
}

// Ingest offers dp to the open batch without blocking. It returns false if
// the batcher is closed or its inbox is full, in which case dp is dropped.
func (b *Batcher) Ingest(dp model.Datapoint) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}

	select {
	case b.inbox <- dp:
		return true
	default:
		b.metrics.Dropped.WithLabelValues(ReasonIngestFull).Inc()
		b.logger.Warnw("ingest queue full, datapoint dropped", "metric", dp.Metric)
		return false
	}
}

// Close stops accepting datapoints. Everything already accepted is released
// and sent; Done is closed once that finishes. Close is idempotent.
func (b *Batcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.inbox)
}

// Done is closed when the batcher has drained after Close.
func (b *Batcher) Done() <-chan struct{} {
	return b.done
}

// Pending returns the number of released batches not yet picked up for sending.
func (b *Batcher) Pending() int {
	return b.queue.Len()
}

func (b *Batcher) collect() {
	defer close(b.collected)

	batch := make([]model.Datapoint, 0, b.cfg.MaxBatchSize)
	timer := b.clk.NewTimer(b.cfg.MaxTimeBetweenBatches)
	armed := true
	defer timer.Stop()

	release := func() {
		if len(batch) == 0 {
			return
		}
		if armed {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			armed = false
		}

		b.metrics.Released.Inc()
		if evicted := b.queue.Push(batch); evicted > 0 {
			b.metrics.Dropped.WithLabelValues(ReasonOverflow).Add(float64(evicted))
			b.logger.Warnw("pending batch queue full, oldest batch dropped",
				"datapoints", evicted,
				"max_pending", b.cfg.MaxPendingBatches)
		}
		b.metrics.Pending.Set(float64(b.queue.Len()))
		batch = make([]model.Datapoint, 0, b.cfg.MaxBatchSize)
	}

	for {
		select {
		case dp, ok := <-b.inbox:
			if !ok {
				release()
				return
			}
			batch = append(batch, dp)
			if len(batch) >= b.cfg.MaxBatchSize {
				release()
			}

		case <-timer.C:
			armed = false
			if len(batch) > 0 {
				release()
			} else {
				timer.Reset(b.cfg.MaxTimeBetweenBatches)
				armed = true
			}

		case <-b.sent:
			if !armed {
				timer.Reset(b.cfg.MaxTimeBetweenBatches)
				armed = true
			}
		}
	}
}

func (b *Batcher) transmit() {
	defer close(b.done)

	ctx := context.Background()
	for {
		if batch, ok := b.queue.Pop(); ok {
			b.metrics.Pending.Set(float64(b.queue.Len()))
			b.sender.Send(ctx, batch)

			select {
			case b.sent <- struct{}{}:
			default:
			}
			continue
		}

		select {
		case <-b.queue.Notify():
		case <-b.collected:
			if b.queue.Len() == 0 {
				return
			}
		}
	}
}

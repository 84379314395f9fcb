package reporter

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/metrics-forwarder/internal/clock"
	"github.com/and161185/metrics-forwarder/internal/errs"
	"github.com/and161185/metrics-forwarder/internal/retry"
	"github.com/and161185/metrics-forwarder/model"
)

// DatapointPath is appended to the base URL.
const DatapointPath = "/v2/datapoint"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// Config holds everything the reporter needs to reach the endpoint.
type Config struct {
	BaseURL           string
	Token             string
	DefaultDimensions map[string]string
	DefaultSource     string
	PostTimeout       time.Duration
	Retry             retry.Policy
	Encoding          string
	Compress          bool
	UserAgent         string
}

// Reporter serializes batches and posts them with bounded retries.
// Send is not meant to be called concurrently; the batcher's single
// transmit stage is its only caller.
type Reporter struct {
	cfg      Config
	endpoint string
	client   *http.Client
	enc      Encoder
	clk      clock.Clock
	logger   *zap.SugaredLogger
	metrics  *Metrics
}

// New returns a Reporter. A nil client is built with NewHTTPClient from cfg.
// Nil clk, logger and metrics fall back to the real clock and no-op ones.
func New(cfg Config, client *http.Client, clk clock.Clock, logger *zap.SugaredLogger, metrics *Metrics) (*Reporter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: empty api token", errs.ErrInvalidConfig)
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: bad base url %q", errs.ErrInvalidConfig, cfg.BaseURL)
	}
	if cfg.PostTimeout <= 0 {
		return nil, fmt.Errorf("%w: post timeout must be positive", errs.ErrInvalidConfig)
	}
	if cfg.Retry.NumRetries < 0 {
		return nil, fmt.Errorf("%w: negative retry count", errs.ErrInvalidConfig)
	}
	enc, err := NewEncoder(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	if client == nil {
		client = NewHTTPClient(cfg.Token, cfg.UserAgent, cfg.Compress)
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

	return &Reporter{
		cfg:      cfg,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + DatapointPath,
		client:   client,
		enc:      enc,
		clk:      clk,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Send delivers batch. Every outcome is logged and counted here; nothing is
// returned to the caller.
func (r *Reporter) Send(ctx context.Context, batch []model.Datapoint) {
	_ = r.Deliver(ctx, batch)
}

// Deliver is Send that also returns the final error. Auth failures match
// errs.ErrUnauthorized, exhausted retries match errs.ErrRetriesExhausted.
func (r *Reporter) Deliver(ctx context.Context, batch []model.Datapoint) error {
	if len(batch) == 0 {
		return nil
	}
	start := r.clk.Now()
	n := len(batch)

	body, err := r.encode(BuildMessage(batch, r.cfg.DefaultDimensions, r.cfg.DefaultSource))
	if err != nil {
		r.metrics.observe(OutcomeFatal, n)
		r.logger.Errorw("failed to encode batch, dropped", "datapoints", n, "error", err)
		return err
	}

	err = retry.Do(ctx, r.cfg.Retry, r.clk,
		func(ctx context.Context) error { return r.post(ctx, body) },
		errs.IsTransient,
		func(attempt int, delay time.Duration, err error) {
			r.metrics.Retries.Inc()
			r.logger.Warnw("send failed, retrying",
				"attempt", attempt,
				"delay", delay,
				"datapoints", n,
				"error", err)
		})
	r.metrics.Duration.Observe(r.clk.Now().Sub(start).Seconds())

	switch {
	case err == nil:
		r.metrics.observe(OutcomeSuccess, n)
		r.logger.Debugw("batch sent", "datapoints", n, "bytes", len(body))
	case errors.Is(err, errs.ErrUnauthorized):
		r.metrics.observe(OutcomeFatal, n)
		r.logger.Errorw("endpoint rejected the api token, batch dropped",
			"datapoints", n,
			"error", err)
	case errors.Is(err, errs.ErrRetriesExhausted):
		r.metrics.observe(OutcomeExhausted, n)
		r.logger.Warnw("retries exhausted, batch dropped",
			"datapoints", n,
			"retries", r.cfg.Retry.NumRetries,
			"error", err)
	default:
		r.metrics.observe(OutcomeFatal, n)
		r.logger.Errorw("batch dropped", "datapoints", n, "error", err)
	}
	return err
}

func (r *Reporter) encode(msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := r.enc.Encode(w, msg); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}

// post makes one delivery attempt bounded by PostTimeout.
func (r *Reporter) post(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.PostTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", r.enc.ContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &errs.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
}

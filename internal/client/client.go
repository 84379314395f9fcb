// Package client submits buckets to a forwarder's ingest API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/and161185/metrics-forwarder/internal/clock"
	"github.com/and161185/metrics-forwarder/internal/errs"
	"github.com/and161185/metrics-forwarder/internal/retry"
	"github.com/and161185/metrics-forwarder/internal/server/middleware"
	"github.com/and161185/metrics-forwarder/model"
)

// BucketsPath is the ingest route on the forwarder.
const BucketsPath = "/v1/buckets"

// Config describes the target forwarder.
type Config struct {
	Addr    string        // Forwarder base URL, e.g. http://localhost:8125
	Key     string        // Signs bodies with HashSHA256 when set
	RealIP  string        // Sent as X-Real-IP; detected when empty
	Timeout time.Duration // Per request
	Retry   retry.Policy
}

// Client implements an agent-side sender of buckets.
type Client struct {
	cfg        Config
	httpClient *http.Client
	clock      clock.Clock
	logger     *zap.SugaredLogger
}

// New returns a Client. A nil hc uses a client with cfg.Timeout.
func New(cfg Config, hc *http.Client, logger *zap.SugaredLogger) (*Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: forwarder address is required", errs.ErrInvalidConfig)
	}
	if !strings.Contains(cfg.Addr, "://") {
		cfg.Addr = "http://" + cfg.Addr
	}
	cfg.Addr = strings.TrimRight(cfg.Addr, "/")
	if cfg.RealIP == "" {
		cfg.RealIP = detectOutboundIP()
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{cfg: cfg, httpClient: hc, clock: clock.Real(), logger: logger}, nil
}

func detectOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	if la, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return la.IP.String()
	}
	return ""
}

// Submit posts buckets as one gzipped JSON array, retrying transient
// failures per the configured policy.
func (c *Client) Submit(ctx context.Context, buckets []model.Bucket) error {
	if len(buckets) == 0 {
		return nil
	}
	raw, err := model.EncodeBuckets(buckets)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	var body bytes.Buffer
	zw := gzip.NewWriter(&body)
	if _, err = zw.Write(raw); err != nil {
		return fmt.Errorf("gzip write: %w", err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("gzip close: %w", err)
	}
	payload := body.Bytes()

	return retry.Do(ctx, c.cfg.Retry, c.clock,
		func(ctx context.Context) error { return c.post(ctx, payload) },
		retriable,
		func(attempt int, delay time.Duration, err error) {
			c.logger.Warnw("submit failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		},
	)
}

// retriable accepts 5xx responses and transport failures.
func retriable(err error) bool {
	var se *errs.StatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError
	}
	return errs.IsTransient(err)
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Addr+BucketsPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	if c.cfg.RealIP != "" {
		req.Header.Set(middleware.RealIPHeader, c.cfg.RealIP)
	}
	if c.cfg.Key != "" {
		req.Header.Set(middleware.HashHeader, middleware.Sign(payload, c.cfg.Key))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	return &errs.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
}

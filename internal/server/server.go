// Package server exposes the forwarder over HTTP: bucket submission for
// aggregators that run out of process, Prometheus self-metrics and a
// liveness probe.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/metrics-forwarder/internal/server/middleware"
	"github.com/and161185/metrics-forwarder/model"
)

const (
	// MaxBodySize bounds a bucket submission, both as sent and decompressed.
	MaxBodySize     = 8 << 20
	shutdownTimeout = 5 * time.Second
)

// Ingestor accepts buckets. It reports false once it stops accepting.
type Ingestor interface {
	Ingest(bucket model.Bucket) bool
}

// Option configures a Server.
type Option func(*Server)

// WithTrustedSubnet restricts bucket submission to clients inside subnet.
func WithTrustedSubnet(subnet *net.IPNet) Option {
	return func(s *Server) { s.trusted = subnet }
}

// WithKey requires submissions to carry an HMAC-SHA256 of the body under key.
func WithKey(key string) Option {
	return func(s *Server) { s.key = key }
}

type Server struct {
	ingestor Ingestor
	gatherer prometheus.Gatherer
	logger   *zap.SugaredLogger
	addr     string
	trusted  *net.IPNet
	key      string
}

// New returns a server listening on addr once Run is called. A nil gatherer
// serves the default Prometheus registry.
func New(ingestor Ingestor, gatherer prometheus.Gatherer, logger *zap.SugaredLogger, addr string, opts ...Option) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	srv := &Server{
		ingestor: ingestor,
		gatherer: gatherer,
		logger:   logger,
		addr:     addr,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Handler returns the routed handler.
func (srv *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(chiMiddleware.Recoverer)
	router.Use(chiMiddleware.StripSlashes)
	router.Use(middleware.LogMiddleware(srv.logger))

	router.Get("/ping", srv.PingHandler)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(srv.gatherer, promhttp.HandlerOpts{}))
	router.Group(func(r chi.Router) {
		r.Use(middleware.TrustedSubnet(srv.trusted))
		r.Use(middleware.VerifyHash(srv.key, MaxBodySize))
		r.Use(middleware.DecompressMiddleware)
		r.Post("/v1/buckets", srv.IngestHandler)
	})
	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (srv *Server) Run(ctx context.Context) error {
	hs := &http.Server{
		Addr:              srv.addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.logger.Infow("ingest server listening", "addr", srv.addr)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", srv.addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	srv.logger.Infow("ingest server stopped", "addr", srv.addr)
	return nil
}

type ingestResponse struct {
	Accepted int `json:"accepted"`
}

// IngestHandler accepts one bucket or an array of buckets.
func (srv *Server) IngestHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}

	buckets, err := model.DecodeBuckets(body)
	if err != nil {
		srv.logger.Debugw("rejected bucket submission", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	for i, b := range buckets {
		if !srv.ingestor.Ingest(b) {
			srv.logger.Warnw("forwarder is not accepting buckets", "accepted", i, "submitted", len(buckets))
			http.Error(w, "forwarder is shutting down", http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(ingestResponse{Accepted: len(buckets)}); err != nil {
		srv.logger.Warnw("failed to write response", "error", err)
	}
}

func (srv *Server) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Command forwarder receives aggregated metric buckets and forwards them as
// datapoints to a SignalFx-compatible ingest endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/metrics-forwarder/internal/backend"
	"github.com/and161185/metrics-forwarder/internal/buildinfo"
	"github.com/and161185/metrics-forwarder/internal/config"
	"github.com/and161185/metrics-forwarder/internal/hostinfo"
	"github.com/and161185/metrics-forwarder/internal/reporter"
	"github.com/and161185/metrics-forwarder/internal/server"
	"github.com/and161185/metrics-forwarder/internal/server/middleware"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, "forwarder:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string) error {
	cfg, err := config.Load(args, getenv)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	buildinfo.Log(logger)

	source := hostinfo.NewResolver(cfg.CloudMetadata, logger).Source(ctx, cfg.DefaultSource)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rep, err := reporter.New(cfg.ReporterConfig(source, buildinfo.UserAgent()), nil, nil, logger, reporter.NewMetrics(reg))
	if err != nil {
		return fmt.Errorf("reporter: %w", err)
	}

	be, err := backend.New(backend.Options{
		ReservedNamespace: cfg.ReservedNamespace,
		Batcher:           cfg.BatcherConfig(),
		Sender:            rep,
		Logger:            logger,
		Registerer:        reg,
	})
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	logger.Infow("forwarder started",
		"url", cfg.BaseURL,
		"source", source,
		"encoding", cfg.Encoding,
		"max_batch_size", cfg.MaxBatchSize,
		"max_time_between_batches", cfg.MaxTimeBetweenBatches,
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.ListenAddr != "" {
		subnet, err := middleware.ParseSubnet(cfg.TrustedSubnet)
		if err != nil {
			be.Close()
			return err
		}
		srv := server.New(be, reg, logger, cfg.ListenAddr,
			server.WithTrustedSubnet(subnet),
			server.WithKey(cfg.IngestKey),
		)
		g.Go(func() error { return srv.Run(gctx) })
	} else {
		logger.Warnw("ingest server disabled, no buckets will arrive")
	}

	g.Go(func() error {
		<-gctx.Done()
		be.Close()
		<-be.Done()
		logger.Infow("forwarder stopped")
		return nil
	})

	return g.Wait()
}

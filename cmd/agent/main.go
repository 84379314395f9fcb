// Command agent collects process and host metrics and submits them to a
// forwarder's ingest API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/and161185/metrics-forwarder/cmd/agent/collector"
	"github.com/and161185/metrics-forwarder/internal/buildinfo"
	"github.com/and161185/metrics-forwarder/internal/client"
	"github.com/and161185/metrics-forwarder/internal/config"
	"github.com/and161185/metrics-forwarder/internal/hostinfo"
	"github.com/and161185/metrics-forwarder/internal/retry"
	"github.com/and161185/metrics-forwarder/model"
)

type agentConfig struct {
	Addr           string
	Key            string
	Namespace      string
	PollInterval   time.Duration
	ReportInterval time.Duration
	Timeout        time.Duration
	LogLevel       string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, "agent:", err)
		stop()
		os.Exit(1)
	}
}

func parseFlags(args []string, getenv func(string) string) (*agentConfig, error) {
	cfg := &agentConfig{}
	fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	fs.StringVarP(&cfg.Addr, "address", "a", config.DefaultListenAddr, "forwarder ingest address")
	fs.StringVarP(&cfg.Key, "key", "k", "", "shared key for HashSHA256")
	fs.StringVar(&cfg.Namespace, "namespace", "host.", "root namespace of submitted metrics")
	fs.DurationVarP(&cfg.PollInterval, "poll-interval", "p", 2*time.Second, "collection interval")
	fs.DurationVarP(&cfg.ReportInterval, "report-interval", "r", 10*time.Second, "submission interval")
	fs.DurationVar(&cfg.Timeout, "timeout", 5*time.Second, "request timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", config.DefaultLogLevel, "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if v := getenv("ADDRESS"); v != "" {
		cfg.Addr = v
	}
	if v := getenv("KEY"); v != "" {
		cfg.Key = v
	}
	if cfg.PollInterval <= 0 || cfg.ReportInterval <= 0 {
		return nil, fmt.Errorf("intervals must be positive")
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, getenv func(string) string) error {
	cfg, err := parseFlags(args, getenv)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	buildinfo.Log(logger)

	host := hostinfo.NewResolver(false, logger).Source(ctx, "")
	var tags []string
	if host != "" {
		tags = []string{"host=" + host}
	}
	coll := collector.New(cfg.Namespace, tags)

	clnt, err := client.New(client.Config{
		Addr:    cfg.Addr,
		Key:     cfg.Key,
		Timeout: cfg.Timeout,
		Retry:   retry.Policy{NumRetries: 3, Delay: time.Second, Increment: 2 * time.Second},
	}, nil, logger)
	if err != nil {
		return err
	}

	logger.Infow("agent started", "address", cfg.Addr, "poll", cfg.PollInterval, "report", cfg.ReportInterval)
	loop(ctx, coll, clnt, cfg, logger)
	logger.Infow("agent stopped")
	return nil
}

// loop keeps the latest snapshot of each gauge bucket and submits it with
// the poll counter every report interval. A final submission is made on
// shutdown.
func loop(ctx context.Context, coll *collector.Collector, clnt *client.Client, cfg *agentConfig, logger *zap.SugaredLogger) {
	poll := time.NewTicker(cfg.PollInterval)
	defer poll.Stop()
	report := time.NewTicker(cfg.ReportInterval)
	defer report.Stop()

	var runtimeB, hostB *model.GaugeBucket
	collect := func() {
		runtimeB = coll.Runtime()
		b, err := coll.Host(ctx)
		if err != nil {
			logger.Debugw("host metrics not collected", "error", err)
			return
		}
		hostB = b
	}
	submit := func(ctx context.Context) {
		if runtimeB == nil {
			return
		}
		buckets := []model.Bucket{runtimeB, coll.Polls()}
		if hostB != nil {
			buckets = append(buckets, hostB)
		}
		if err := clnt.Submit(ctx, buckets); err != nil {
			logger.Warnw("submit failed", "error", err)
			return
		}
		coll.ResetPollCount()
	}

	for {
		select {
		case <-poll.C:
			collect()
		case <-report.C:
			submit(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
			submit(final)
			cancel()
			return
		}
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/dray-io/retention/internal/logging"
	"github.com/dray-io/retention/internal/metrics"
	"github.com/dray-io/retention/internal/shard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func runWatch(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to configuration file")
	scenarioPath := fs.String("scenario", "", "Path to scenario file (required)")
	interval := fs.Duration("interval", 10*time.Second, "How often to re-read the scenario")
	metricsAddr := fs.String("metrics-addr", "", "Override metrics address (e.g., :9090)")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: retentionctl watch -scenario <file> [options]

Re-read the scenario on an interval, recompute the retention floors and
serve them on /metrics until interrupted.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *scenarioPath == "" {
		fs.Usage()
		return errors.New("-scenario is required")
	}
	if *interval <= 0 {
		return fmt.Errorf("-interval must be positive, got %s", *interval)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *metricsAddr != "" {
		cfg.Observability.MetricsAddr = *metricsAddr
	}
	logger := logging.ConfigureOutput(cfg.Observability.LogLevel, cfg.Observability.LogFormat, stderr)

	sc, err := LoadScenario(*scenarioPath)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewRetentionMetricsWithRegistry(reg)

	d, err := newDriver(cfg.Retention, sc, shard.WithLogger(logger), shard.WithMetrics(m))
	if err != nil {
		return err
	}

	srv := metrics.NewServerWithRegistry(cfg.Observability.MetricsAddr, reg)
	if err := srv.Start(); err != nil {
		_ = d.close()
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	logger.Infof("watching scenario", map[string]any{
		"scenario":    *scenarioPath,
		"interval":    interval.String(),
		"metricsAddr": srv.Addr(),
	})

	scanner := metrics.NewScanner(newScenarioRefresher(d, *scenarioPath), *interval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scanner.Start()
	<-ctx.Done()
	logger.Info("received shutdown signal")

	scanner.Stop()
	return errors.Join(srv.Close(), d.close())
}

// newScenarioRefresher re-reads the scenario file and applies it to d. It logs
// through the logger carried by the refresh context.
func newScenarioRefresher(d *driver, path string) metrics.Refresher {
	return metrics.RefreshFunc(func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		sc, err := LoadScenario(path)
		if err != nil {
			return err
		}
		plan, err := d.apply(sc)
		if err != nil {
			return err
		}
		logging.FromCtx(ctx).Infof("retention floors", map[string]any{
			"minTranslogGen":   plan.MinTranslogGen,
			"minRetainedSeqNo": plan.MinRetainedSeqNo,
		})
		return nil
	})
}

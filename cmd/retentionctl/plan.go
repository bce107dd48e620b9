package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dray-io/retention/internal/config"
	"github.com/dray-io/retention/internal/logging"
	"github.com/dray-io/retention/internal/shard"
)

// planReport is the output of the plan command.
type planReport struct {
	ShardID string `json:"shardId"`
	shard.Plan
	DeletableGenerations []int64 `json:"deletableGenerations"`
}

func runPlan(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to configuration file")
	scenarioPath := fs.String("scenario", "", "Path to scenario file (required)")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: retentionctl plan -scenario <file> [options]

Compute the oldest translog generation and the lowest soft-deleted sequence
number a shard must keep for the given scenario.

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

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := logging.ConfigureOutput(cfg.Observability.LogLevel, cfg.Observability.LogFormat, stderr)

	sc, err := LoadScenario(*scenarioPath)
	if err != nil {
		return err
	}

	d, err := newDriver(cfg.Retention, sc, shard.WithLogger(logger))
	if err != nil {
		return err
	}
	plan, applyErr := d.apply(sc)
	if err := errors.Join(applyErr, d.close()); err != nil {
		return err
	}

	report := planReport{ShardID: d.retention.ID(), Plan: plan, DeletableGenerations: []int64{}}
	for _, r := range sc.Readers {
		if r.Gen < plan.MinTranslogGen {
			report.DeletableGenerations = append(report.DeletableGenerations, r.Gen)
		}
	}

	if *jsonOutput {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SHARD\tMIN TRANSLOG GEN\tMIN RETAINED SEQNO\tGEN LOCKS\tRETENTION LOCKS")
	fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", report.ShardID, plan.MinTranslogGen, plan.MinRetainedSeqNo,
		plan.PendingTranslogLocks, plan.RetentionLocks)
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\nretention query: %s\n", plan.RetentionQuery)
	fmt.Fprintf(stdout, "deletable generations: %v\n", report.DeletableGenerations)
	return nil
}

// loadConfig reads path when given, otherwise falls back to config.Load.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

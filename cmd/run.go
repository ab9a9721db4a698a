package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/rollbench/internal/bench"
	"github.com/signalnine/rollbench/internal/clock"
	"github.com/signalnine/rollbench/internal/config"
	"github.com/signalnine/rollbench/internal/ledger"
	"github.com/signalnine/rollbench/internal/ledger/sim"
	"github.com/signalnine/rollbench/internal/localnet"
	"github.com/signalnine/rollbench/internal/pricing"
	"github.com/signalnine/rollbench/internal/program"
	"github.com/signalnine/rollbench/internal/report"
	"github.com/signalnine/rollbench/internal/result"
	"github.com/signalnine/rollbench/internal/scenario"
	"github.com/signalnine/rollbench/internal/throttle"
)

var (
	flagDryRun        bool
	flagAllowMismatch bool
	flagIterations    int
	flagPoolSize      int
	flagScenarios     []string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a benchmark run",
		RunE:  runBenchmark,
	}
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "run against the in-process simulated ledger")
	cmd.Flags().BoolVar(&flagAllowMismatch, "allow-mismatch", false, "exit zero even when outcomes diverge from expectations")
	cmd.Flags().IntVar(&flagIterations, "iterations", 0, "override iteration count")
	cmd.Flags().IntVar(&flagPoolSize, "pool-size", 0, "override shared pool size")
	cmd.Flags().StringSliceVar(&flagScenarios, "scenario", nil, "run only these scenarios (repeatable)")
	return cmd
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cfg); err != nil {
		return err
	}
	scenarios, err := scenario.Select(cfg.Scenarios)
	if err != nil {
		return err
	}
	var prices *pricing.Table
	if cfg.Pricing != "" {
		if prices, err = pricing.Load(cfg.Pricing); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, cleanup, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run directory: %s\n", runDir)

	meta := &result.RunMeta{
		ID:         result.NewRunID(),
		Network:    cfg.Network,
		Endpoint:   cfg.Endpoint,
		PackageID:  cfg.PackageID,
		GasBudget:  cfg.GasBudget,
		PoolSize:   cfg.Pool.Size,
		Iterations: cfg.Iterations,
		StartedAt:  time.Now().UTC(),
	}
	for _, s := range scenarios {
		meta.Scenarios = append(meta.Scenarios, s.Name)
	}
	logger.Info("run started",
		zap.String("run", meta.ID),
		zap.String("network", cfg.Network),
		zap.Strings("scenarios", meta.Scenarios))

	clk := clock.Real{}
	b := bench.New(bench.Options{
		Client:    client,
		Catalogue: program.New(cfg.GasBudget),
		Throttle: throttle.New(throttle.Config{
			Delay:       cfg.Throttle.Delay.Duration,
			SharedDelay: cfg.Throttle.SharedDelay.Duration,
			MaxRPS:      cfg.Throttle.MaxRPS,
		}, clk),
		Clock:        clk,
		Logger:       logger,
		PoolSize:     cfg.Pool.Size,
		Iterations:   cfg.Iterations,
		Depths:       depthsFromConfig(cfg.Depths),
		PayloadSizes: cfg.PayloadSizes,
		Scenarios:    scenarios,
	})
	runErr := b.Run(ctx)

	// Whatever was measured is exported, interrupted or not.
	records := b.Store().Snapshot()
	rep := report.Build(records, report.Options{Network: cfg.Network, Pricing: prices})
	if err := export(cfg, runDir, meta, rep, records, runErr); err != nil {
		return err
	}

	fmt.Fprintln(out, "\n--- Results ---")
	if err := report.Write(rep, "table", out); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("run stopped after %d submissions: %w", len(records), runErr)
	}
	if n := len(rep.Summary.Mismatches); n > 0 && !flagAllowMismatch {
		return fmt.Errorf("%d outcomes diverged from expectations", n)
	}
	return nil
}

func applyRunFlags(cfg *config.Config) error {
	if flagDryRun {
		cfg.Network = config.NetworkSim
	}
	if flagIterations > 0 {
		if flagIterations < 2 {
			return fmt.Errorf("--iterations must be at least 2")
		}
		cfg.Iterations = flagIterations
	}
	if flagPoolSize > 0 {
		cfg.Pool.Size = flagPoolSize
	}
	if len(flagScenarios) > 0 {
		cfg.Scenarios = flagScenarios
	}
	return nil
}

// newClient returns the ledger client for cfg.Network and a cleanup func that
// must be called once the run is over.
func newClient(ctx context.Context, cfg *config.Config) (ledger.Client, func(), error) {
	switch cfg.Network {
	case config.NetworkSim:
		return sim.New(sim.Options{
			Package:       cfg.PackageID,
			Module:        cfg.Module,
			ConflictEvery: cfg.Sim.ConflictEvery,
		}), func() {}, nil
	case config.NetworkLocalnet:
		node, err := localnet.Start(ctx, localnet.Options{
			Image:          cfg.Localnet.Image,
			RPCPort:        cfg.Localnet.RPCPort,
			StartupTimeout: cfg.Localnet.StartupTimeout.Duration,
			Logger:         logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("starting localnet: %w", err)
		}
		logger.Info("localnet ready", zap.String("url", node.URL()), zap.String("endpoint", cfg.Endpoint))
		cleanup := func() {
			if err := node.Stop(context.Background()); err != nil {
				logger.Warn("stopping localnet", zap.Error(err))
			}
		}
		return rpcClient(cfg), cleanup, nil
	default:
		return rpcClient(cfg), func() {}, nil
	}
}

func rpcClient(cfg *config.Config) *ledger.RPCClient {
	return ledger.NewRPCClient(ledger.RPCOptions{
		Endpoint:  cfg.Endpoint,
		Method:    cfg.RPCMethod,
		Token:     cfg.Token,
		Sender:    cfg.Sender,
		PackageID: cfg.PackageID,
		Module:    cfg.Module,
	})
}

func depthsFromConfig(in map[string]uint64) map[result.Depth]uint64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[result.Depth]uint64, len(in))
	for label, depth := range in {
		out[result.Depth(label)] = depth
	}
	return out
}

// export writes the run directory and appends to the cumulative CSV.
func export(cfg *config.Config, runDir string, meta *result.RunMeta, rep *report.Report, records []result.Outcome, runErr error) error {
	if err := result.Save(runDir, records, cfg.Results.MaxMessageLen); err != nil {
		return fmt.Errorf("saving results: %w", err)
	}

	meta.FinishedAt = time.Now().UTC()
	meta.Total = rep.Summary.Total
	meta.Succeeded = rep.Summary.Succeeded
	meta.Failed = rep.Summary.Failed
	meta.Mismatches = len(rep.Summary.Mismatches)
	if runErr != nil {
		meta.Interrupted = true
		meta.Error = runErr.Error()
	}
	if err := result.WriteRunMeta(runDir, meta); err != nil {
		return err
	}

	cumulative := filepath.Join(cfg.Results.Dir, result.CSVFile)
	backup, err := result.AppendCSV(cumulative, records, cfg.Results.MaxMessageLen)
	if err != nil {
		return fmt.Errorf("appending %s: %w", cumulative, err)
	}
	if backup != "" {
		logger.Warn("existing csv had a different header, moved aside",
			zap.String("path", cumulative), zap.String("backup", backup))
	}
	logger.Info("results exported",
		zap.String("dir", runDir),
		zap.Int("records", len(records)),
		zap.Bool("interrupted", meta.Interrupted))
	return nil
}

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/portfoliosim/internal/artifacts/gc"
	"github.com/sawpanic/portfoliosim/internal/backtest/portfolio"
	"github.com/sawpanic/portfoliosim/internal/config"
	"github.com/sawpanic/portfoliosim/internal/data/cache"
	"github.com/sawpanic/portfoliosim/internal/data/cold"
	"github.com/sawpanic/portfoliosim/internal/infrastructure/db"
	plog "github.com/sawpanic/portfoliosim/internal/log"
	"github.com/sawpanic/portfoliosim/internal/metrics"
	"github.com/sawpanic/portfoliosim/internal/models"
	"github.com/sawpanic/portfoliosim/internal/persistence"
	"github.com/sawpanic/portfoliosim/internal/signals"
)

var runSteps = []string{"load", "enrich", "weights", "simulate", "write", "persist"}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate a feature dataset and write run artifacts",
		Long: `Loads a daily feature CSV, computes missing indicators, derives target
weights with the EMA crossover strategy (or reads them from --weights),
simulates the portfolio and writes equity_curve.csv, trades.csv,
summary.json and report.md under <output>/<run date>/.`,
		RunE: runSimulation,
	}

	cmd.Flags().String("data", "", "Feature CSV with date,symbol,open,high,low,close,volume (required)")
	cmd.Flags().String("weights", "", "Target weight CSV with date,symbol,target_weight; bypasses the strategy")
	cmd.Flags().String("output", "", "Output root directory (overrides output.dir)")
	cmd.Flags().Float64("capital", 0, "Initial capital (overrides backtest.initial_capital)")
	cmd.Flags().Float64("commission", -1, "Commission rate (overrides backtest.commission_rate)")
	cmd.Flags().Float64("slippage", -1, "Slippage rate (overrides backtest.slippage_rate)")
	cmd.Flags().String("risk-mode", "", "Pre-trade risk mode (advisory|enforce)")
	cmd.Flags().String("run-id", "", "Fixed run identifier instead of a generated UUID")
	cmd.Flags().Bool("no-cache", false, "Skip the target weight cache")
	cmd.Flags().Int("keep-runs", 0, "Keep only the newest N dated run directories (overrides output.keep_runs)")
	cmd.MarkFlagRequired("data")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flagPath, _ := cmd.Flags().GetString("config")
	path := config.ResolvePath(flagPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		log.Debug().Str("path", path).Msg("Configuration loaded")
	}
	return cfg, nil
}

// applyRunFlags overlays explicitly set flags onto cfg and revalidates
func applyRunFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	if flags.Changed("output") {
		cfg.Output.Dir, _ = flags.GetString("output")
	}
	if flags.Changed("keep-runs") {
		cfg.Output.KeepRuns, _ = flags.GetInt("keep-runs")
	}
	if flags.Changed("capital") {
		cfg.Backtest.InitialCapital, _ = flags.GetFloat64("capital")
	}
	if flags.Changed("commission") {
		cfg.Backtest.CommissionRate, _ = flags.GetFloat64("commission")
	}
	if flags.Changed("slippage") {
		cfg.Backtest.SlippageRate, _ = flags.GetFloat64("slippage")
	}
	if flags.Changed("risk-mode") {
		cfg.Risk.Mode, _ = flags.GetString("risk-mode")
	}
	return cfg.Validate()
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd.Flags(), cfg); err != nil {
		return err
	}

	dataPath, _ := cmd.Flags().GetString("data")
	weightsPath, _ := cmd.Flags().GetString("weights")
	runID, _ := cmd.Flags().GetString("run-id")
	noCache, _ := cmd.Flags().GetBool("no-cache")

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
	defer cancel()

	reg := metrics.NewRegistry()
	steps := plog.NewStepLogger(runSteps)

	// load
	steps.StartStep("load")
	timer := reg.StartStepTimer("load")
	ds, err := cold.NewCSVReader().LoadFeatures(dataPath)
	if err != nil {
		timer.Stop("error")
		steps.Fail(err.Error())
		return err
	}
	timer.Stop("ok")
	dates := distinctDates(ds.Rows)
	log.Info().
		Str("data", dataPath).
		Int("rows", len(ds.Rows)).
		Int("symbols", len(ds.Symbols())).
		Int("dates", dates).
		Msg("Feature dataset loaded")

	// enrich
	steps.StartStep("enrich")
	if filled := cold.Enrich(ds, cfg.Features); len(filled) > 0 {
		log.Info().Strs("columns", filled).Int("vol_window", cfg.Features.VolWindow).Msg("Computed missing indicator columns")
	}

	// weights
	steps.StartStep("weights")
	strat, closeStore, err := buildStrategy(ctx, cfg, reg, weightsPath, noCache)
	if err != nil {
		steps.Fail(err.Error())
		return err
	}
	defer closeStore()

	// simulate
	steps.StartStep("simulate")
	progress := plog.NewProgressIndicator("simulate", dates, plog.ProgressConfig{Every: cfg.Output.ProgressEvery, ShowETA: true})
	opts := []portfolio.Option{
		portfolio.WithObserver(reg),
		portfolio.WithProgress(progress),
		portfolio.WithRisk(cfg.Risk.Limits, cfg.RiskMode()),
	}
	if runID != "" {
		opts = append(opts, portfolio.WithRunID(runID))
	}
	engine, err := portfolio.NewEngine(cfg.Backtest, opts...)
	if err != nil {
		steps.Fail(err.Error())
		return err
	}

	timer = reg.StartStepTimer("simulate")
	result, runErr := engine.RunStrategy(ds.Rows, strat)
	if result == nil {
		timer.Stop("error")
		steps.Fail(runErr.Error())
		return runErr
	}
	if runErr != nil {
		timer.Stop("error")
		progress.Fail(runErr.Error())
	} else {
		timer.Stop("ok")
	}

	// write
	steps.StartStep("write")
	writer := portfolio.NewWriter(cfg.Output.Dir, result.StartedAt)
	paths, err := writer.WriteAll(result)
	if err != nil {
		steps.Fail(err.Error())
		return fmt.Errorf("failed to write artifacts: %w", err)
	}
	pruneRuns(cfg)

	// persist
	steps.StartStep("persist")
	persistRun(ctx, cfg, reg, result)
	steps.Finish()

	printRunSummary(result, paths)
	return runErr
}

// pruneRuns applies output.keep_runs. Retention failures never fail the run.
func pruneRuns(cfg *config.Config) {
	if cfg.Output.KeepRuns <= 0 {
		return
	}
	plan, err := gc.NewPlanner(cfg.Output.Dir, cfg.Output.KeepRuns).CreatePlan(false)
	if err != nil {
		log.Warn().Err(err).Msg("Run retention skipped")
		return
	}
	if len(plan.ToDelete) == 0 {
		return
	}
	if res := gc.NewExecutor(cfg.Output.Dir).Apply(plan); !res.Success {
		log.Warn().Strs("errors", res.Errors).Msg("Run retention incomplete")
	}
}

// buildStrategy returns the weight source for the run and a closer for any cache connection
func buildStrategy(ctx context.Context, cfg *config.Config, reg *metrics.Registry, weightsPath string, noCache bool) (signals.Strategy, func(), error) {
	noop := func() {}

	if weightsPath != "" {
		weights, err := cold.NewCSVReader().LoadWeights(weightsPath)
		if err != nil {
			return nil, noop, err
		}
		log.Info().Str("weights", weightsPath).Int("rows", len(weights)).Msg("Using supplied target weights")
		return signals.NewPrecomputed(weights), noop, nil
	}

	ema, err := signals.NewEMACross(cfg.Strategy)
	if err != nil {
		return nil, noop, err
	}
	if noCache || !cfg.Cache.Enabled {
		return ema, noop, nil
	}

	var store cache.Store
	closer := noop
	if cfg.Cache.Addr != "" {
		redisStore, err := cache.NewRedisStore(ctx, cfg.Cache.RedisConfig)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Cache.Addr).Msg("Redis cache unavailable, using memory cache")
		} else {
			store = redisStore
			closer = func() { redisStore.Close() }
		}
	}
	if store == nil {
		store = cache.NewMemoryStore(cfg.Cache.MaxEntries)
	}

	params := struct {
		Strategy signals.Config    `json:"strategy"`
		Features cold.EnrichConfig `json:"features"`
	}{cfg.Strategy, cfg.Features}
	return cache.NewCachedStrategy(ema, params, store, cfg.Cache.TTL, cache.WithRecorder(reg)), closer, nil
}

// persistRun saves a completed run to the database sink. Sink failures are
// logged and counted; the artifacts on disk remain authoritative.
func persistRun(ctx context.Context, cfg *config.Config, reg *metrics.Registry, result *portfolio.Result) {
	if !cfg.Database.Enabled {
		return
	}
	if !result.Complete {
		log.Info().Str("run_id", result.RunID).Msg("Incomplete run not persisted")
		reg.RecordSinkWrite("skipped")
		return
	}

	manager, err := db.NewManager(ctx, cfg.Database, persistence.DefaultBreakerConfig())
	if err != nil {
		log.Warn().Err(err).Msg("Run sink unavailable")
		reg.RecordSinkWrite("error")
		return
	}
	defer manager.Close()

	record, err := persistence.RecordFor(result)
	if err != nil {
		log.Warn().Err(err).Msg("Run not persisted")
		reg.RecordSinkWrite("skipped")
		return
	}
	if err := manager.Runs().SaveRun(ctx, record, result.Trades, result.EquityCurve); err != nil {
		log.Warn().
			Err(err).
			Str("run_id", result.RunID).
			Str("breaker", manager.BreakerState()).
			Msg("Failed to persist run")
		reg.RecordSinkWrite("error")
		return
	}
	reg.RecordSinkWrite("ok")
	log.Info().Str("run_id", result.RunID).Int("trades", len(result.Trades)).Msg("Run persisted")
}

func printRunSummary(result *portfolio.Result, paths *portfolio.ArtifactPaths) {
	fmt.Printf("Run %s (%s): %s\n", result.RunID, result.Strategy, result.Status())
	if s := result.Summary; s != nil {
		fmt.Printf("  Dates:         %d\n", s.Dates)
		fmt.Printf("  Final equity:  %.2f\n", s.FinalEquity)
		fmt.Printf("  Total return:  %.2f%%\n", s.TotalReturn*100)
		fmt.Printf("  Sharpe ratio:  %.2f\n", s.SharpeRatio)
		fmt.Printf("  Max drawdown:  %.2f%%\n", s.MaxDrawdown*100)
		fmt.Printf("  Trades/stops:  %d/%d\n", s.TradeCount, s.StopCount)
	} else {
		fmt.Printf("  Failed after %d dates: %s\n", len(result.EquityCurve), result.Error)
	}
	abs, err := filepath.Abs(paths.OutputDir)
	if err != nil {
		abs = paths.OutputDir
	}
	fmt.Printf("  Artifacts:     %s\n", abs)
}

func distinctDates(rows []models.FeatureRow) int {
	seen := make(map[time.Time]struct{})
	for _, r := range rows {
		seen[r.Date] = struct{}{}
	}
	return len(seen)
}

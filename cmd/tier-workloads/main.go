package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gftdcojp/tier-workloads/internal/config"
	"github.com/gftdcojp/tier-workloads/internal/metrics"
	"github.com/gftdcojp/tier-workloads/internal/storage"
	"github.com/gftdcojp/tier-workloads/internal/workload"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (defaults are used when empty)")
	name := flag.String("workload", "", "workload to run: checkpoints, filesystem or scientific_evaluation")
	variant := flag.String("variant", "", "filesystem variant: lanl, coarse, coarse-reserved or coarse-reserved-sync")
	seed := flag.Uint64("seed", 0, "seed of the workload generator (overrides config when non-zero)")
	runtime := flag.Duration("runtime", 0, "read phase duration of scientific_evaluation")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tier-workloads %s\n", version)
		os.Exit(0)
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	if *name != "" {
		cfg.Workload.Name = *name
	}
	if *variant != "" {
		cfg.Workload.Filesystem.Variant = *variant
	}
	if *seed != 0 {
		cfg.Workload.Seed = *seed
	}
	if *runtime > 0 {
		cfg.Workload.Runtime = config.Duration(*runtime)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Observability.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("workload failed", zap.String("workload", cfg.Workload.Name), zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stack, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Error("error closing engine", zap.Error(err))
		}
	}()

	// Servers live until the workload returns.
	srvCtx, stopServers := context.WithCancel(ctx)
	defer stopServers()
	g, gctx := errgroup.WithContext(srvCtx)

	if cfg.Observability.Metrics.Enabled {
		g.Go(func() error { return metrics.RunServer(gctx, cfg.Observability.Metrics) })
	}

	if cfg.Observability.Health.Enabled {
		healthChecker := metrics.NewHealthChecker(stack.NATS, stack.Meta, stack.Buckets)
		g.Go(func() error {
			return metrics.RunHealthServer(gctx, cfg.Observability.Health, healthChecker)
		})
	}

	g.Go(func() error {
		defer stopServers()
		return runWorkload(gctx, cfg, stack, logger)
	})

	logger.Info("tier-workloads started",
		zap.String("version", version),
		zap.String("workload", cfg.Workload.Name),
		zap.Uint64("seed", cfg.Workload.Seed),
	)

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("workload interrupted")
			return nil
		}
		return err
	}
	return nil
}

func runWorkload(ctx context.Context, cfg *config.Config, stack *storage.Stack, logger *zap.Logger) error {
	client := workload.NewClient(stack.Engine, cfg.Workload.Seed, os.Stdout, logger.Named("workload"))
	client.Progress = workload.NewProgress(cfg.Observability.Progress)

	var err error
	switch cfg.Workload.Name {
	case config.WorkloadCheckpoints:
		err = workload.RunCheckpoints(ctx, client, workload.DefaultCheckpointShape())
	case config.WorkloadFilesystem:
		var shape workload.FilesystemShape
		shape, err = workload.FilesystemShapeFor(cfg.Workload.Filesystem.Variant)
		if err != nil {
			return err
		}
		shape.ReadBufferSize = int64(cfg.Workload.Filesystem.ReadBufferSize)
		shape.Runs = cfg.Workload.Filesystem.Runs
		err = workload.RunFilesystem(ctx, client, shape)
	case config.WorkloadScientific:
		err = workload.RunScientific(ctx, client, workload.DefaultScientificShape(), cfg.Workload.Runtime.Duration())
	default:
		return fmt.Errorf("unknown workload %q", cfg.Workload.Name)
	}
	if err != nil {
		return err
	}

	client.Progress.Wait()
	logger.Info("workload complete", zap.String("workload", cfg.Workload.Name))
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level.SetLevel(zap.DebugLevel)
	case "info":
		zapCfg.Level.SetLevel(zap.InfoLevel)
	case "warn":
		zapCfg.Level.SetLevel(zap.WarnLevel)
	case "error":
		zapCfg.Level.SetLevel(zap.ErrorLevel)
	}

	// Stdout carries the workload's progress lines.
	if cfg.Output != "" {
		zapCfg.OutputPaths = []string{cfg.Output}
	}

	return zapCfg.Build()
}

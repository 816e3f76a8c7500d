package main

import (
	"context"
	"os"
	"time"

	"conti/internal/backend"
	"conti/internal/cli"
	"conti/internal/log"
	"conti/internal/metrics"
	"conti/internal/services"
)

func main() {
	cli.LoadEnvFile()
	bootstrap := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(bootstrap)

	logger := cli.ConfigureLogger(cfg, log.ComponentWorker)
	logger.Info("Starting recurring-worker")

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if result.Publisher == nil {
		logger.Info("AMQP disabled, materialized expenses will not be mirrored")
	}

	m := metrics.New()
	materializer := services.NewMaterializer(result.Store, result.Publisher, m)
	materializer.MaxCatchUp = cfg.MaxCatchUp

	scheduler := services.NewScheduler(materializer, m, services.SchedulerConfig{
		Interval:   cfg.RecurringInterval,
		RunOnStart: true,
	})
	logger.Info("Recurring processor configured",
		"interval", cfg.RecurringInterval,
		"max_catch_up", cfg.MaxCatchUp,
		"backend", cfg.DataBackend)

	stopMetrics := cli.ServeMetrics(logger.Logger, cfg.MetricsAddr, m.Handler())

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Error("Scheduler stop error", "error", err)
		}
		stopMetrics(ctx)
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	if err := scheduler.Start(context.Background()); err != nil {
		logger.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"conti/internal/backend"
	"conti/internal/cli"
	apphttp "conti/internal/http"
	"conti/internal/log"
	"conti/internal/metrics"
	"conti/internal/services"
)

func main() {
	cli.LoadEnvFile()
	bootstrap := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(bootstrap)

	logger := cli.ConfigureLogger(cfg, log.ComponentApp)
	logger.Info("Starting conti API", "port", cfg.Port, "backend", cfg.DataBackend)

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

	m := metrics.New()
	ledger := services.NewLedger(result.Store, result.Publisher, m, cfg.HouseholdMembers)
	ledger.Materializer().MaxCatchUp = cfg.MaxCatchUp

	srv := apphttp.NewServer(":"+cfg.Port, ledger, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		CurrencySymbol:     cfg.CurrencySymbol,
		Metrics:            m,
		Logger:             logger.WithComponent(log.ComponentHTTP),
	})
	stopMetrics := cli.ServeMetrics(logger.Logger, cfg.MetricsAddr, m.Handler())

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		stopMetrics(ctx)
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}

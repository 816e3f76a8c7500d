package main

import (
	"context"
	"errors"
	"os"
	"time"

	"conti/internal/backend"
	"conti/internal/cli"
	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/metrics"
	gsheet "conti/internal/sheets/google"
	"conti/internal/worker"
)

// reconcileInterval is how often the current period is re-mirrored to pick up
// events lost while the broker or the spreadsheet was unreachable.
const reconcileInterval = 6 * time.Hour

func main() {
	cli.LoadEnvFile()
	bootstrap := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(bootstrap)

	logger := cli.ConfigureLogger(cfg, log.ComponentWorker)
	logger.Info("Starting ledger-worker")

	if !cfg.SheetsEnabled() {
		logger.Error("GOOGLE_SPREADSHEET_ID is required for the ledger worker")
		os.Exit(1)
	}
	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the ledger worker")
		os.Exit(1)
	}

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
	if result.AMQP == nil {
		logger.Error("AMQP broker unreachable")
		os.Exit(1)
	}

	sheetsClient, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID:    cfg.GoogleSpreadsheetID,
		ExpensesSheet:    cfg.GoogleSheetName,
		SettlementsSheet: cfg.GoogleSettlementsSheetName,
		CredentialsJSON:  cfg.GoogleServiceAccountJSON,
		CredentialsFile:  cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	m := metrics.New()
	mirrorWorker := worker.NewMirrorWorker(result.Store, sheetsClient, m)
	stopMetrics := cli.ServeMetrics(logger.Logger, cfg.MetricsAddr, m.Handler())

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		stopMetrics(ctx)
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Performing startup sync check...")
	if err := mirrorWorker.StartupSyncCheck(ctx, core.DateOf(time.Now())); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	go func() {
		ticker := time.NewTicker(reconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				sheetsClient.InvalidateRowCache()
				if _, _, err := mirrorWorker.SyncPeriod(ctx, core.PeriodOf(core.DateOf(now))); err != nil {
					logger.Error("Periodic sync failed", "error", err)
				}
			}
		}
	}()

	go func() {
		if err := result.AMQP.Consume(ctx, mirrorWorker.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/finledger/bankrecon/internal/domain/matching"
	"github.com/finledger/bankrecon/internal/domain/recon"
	"github.com/finledger/bankrecon/internal/infrastructure/config"
	"github.com/finledger/bankrecon/internal/infrastructure/logging"
	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Configuration file path")
		bankAccount = flag.String("bank-account", "", "Bank account to reconcile (required)")
		fromDate    = flag.String("from", "", "Posting date range start (YYYY-MM-DD)")
		toDate      = flag.String("to", "", "Posting date range end (YYYY-MM-DD)")
		schedule    = flag.String("schedule", "", "Cron expression; run continuously instead of once")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	_ = godotenv.Load()

	var cfg *config.Config
	if *configFile != "" {
		cfg = config.LoadOrEnvWithPath(*configFile)
	} else {
		cfg = config.LoadOrEnv()
	}
	if *verbose {
		cfg.Observability.Logging.Level = slog.LevelDebug.String()
	}

	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "autoreconcile")

	if *bankAccount == "" {
		logger.Error("--bank-account is required")
		os.Exit(1)
	}

	dates, err := parseRange(*fromDate, *toDate)
	if err != nil {
		logger.Error("Invalid date range", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	matcher := matching.NewMatcher(store, matching.AllowAll{}, logger)
	executor := recon.NewExecutor(store, logger)
	auto := recon.NewAutoReconciler(store, matcher, executor, logger)

	cronExpr := *schedule
	if cronExpr == "" {
		cronExpr = cfg.Reconciliation.Schedule
	}
	if cronExpr == "" || *fromDate != "" || *toDate != "" {
		runOnce(auto, *bankAccount, dates, logger)
		return
	}

	// Scheduled mode: each run covers the configured lookback window.
	lookback := cfg.Reconciliation.LookbackDays
	c := cron.New()
	_, err = c.AddFunc(cronExpr, func() {
		from := time.Now().AddDate(0, 0, -lookback)
		runOnce(auto, *bankAccount, matching.DateRange{From: &from}, logger)
	})
	if err != nil {
		logger.Error("Invalid cron expression", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Starting scheduled reconciliation",
		slog.String("schedule", cronExpr),
		slog.Int("lookback_days", lookback))
	c.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx := c.Stop()
	<-ctx.Done()
	logger.Info("Scheduler stopped")
}

func runOnce(auto *recon.AutoReconciler, bankAccount string, dates matching.DateRange, logger *slog.Logger) {
	result, err := auto.Run(context.Background(), bankAccount, dates, nil)
	if err != nil {
		logger.Error("Reconciliation run failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("Reconciliation run complete", slog.String("summary", result.Summary()))
	for _, name := range result.Failed {
		logger.Warn("Transaction failed", slog.String("transaction", name))
	}
}

func parseRange(from, to string) (matching.DateRange, error) {
	var dates matching.DateRange
	if from != "" {
		d, err := time.Parse("2006-01-02", from)
		if err != nil {
			return dates, err
		}
		dates.From = &d
	}
	if to != "" {
		d, err := time.Parse("2006-01-02", to)
		if err != nil {
			return dates, err
		}
		dates.To = &d
	}
	return dates, nil
}

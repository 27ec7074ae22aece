package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/finledger/bankrecon/internal/infrastructure/config"
	"github.com/finledger/bankrecon/internal/infrastructure/logging"
	"github.com/finledger/bankrecon/internal/infrastructure/storage"
	"github.com/finledger/bankrecon/internal/ingestion/camt"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Configuration file path")
		file        = flag.String("file", "", "CAMT.053 statement file (.xml or .zip, required)")
		company     = flag.String("company", "", "Company the statement belongs to (required)")
		bankAccount = flag.String("bank-account", "", "Bank account the statement belongs to (required)")
	)
	flag.Parse()

	_ = godotenv.Load()

	var cfg *config.Config
	if *configFile != "" {
		cfg = config.LoadOrEnvWithPath(*configFile)
	} else {
		cfg = config.LoadOrEnv()
	}

	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "importcamt")

	if *file == "" || *company == "" || *bankAccount == "" {
		logger.Error("--file, --company and --bank-account are required")
		os.Exit(1)
	}

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	importer := camt.NewImporter(store, logger)
	inserted, err := importer.ImportFile(context.Background(), *file, *company, *bankAccount)
	if err != nil {
		logger.Error("Import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Import complete",
		slog.String("file", *file),
		slog.Int("inserted", inserted))
}

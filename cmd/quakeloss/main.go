package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rewired-gh/quakeloss/internal/config"
	"github.com/rewired-gh/quakeloss/internal/eventbased"
	"github.com/rewired-gh/quakeloss/internal/exposure"
	"github.com/rewired-gh/quakeloss/internal/logger"
	"github.com/rewired-gh/quakeloss/internal/report"
	"github.com/rewired-gh/quakeloss/internal/storage"
	"github.com/rewired-gh/quakeloss/internal/vulnerability"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	calcConfig, err := calculatorConfig(cfg.Calculation)
	if err != nil {
		logger.Fatal("Invalid calculation settings: %v", err)
	}

	portfolio, err := exposure.Load(cfg.Input.Path)
	if err != nil {
		logger.Fatal("Failed to load exposure: %v", err)
	}
	for taxonomy, rejectErr := range portfolio.Rejected {
		logger.Error("Vulnerability function %s unusable, its assets will fail: %v", taxonomy, rejectErr)
	}

	store, err := storage.New(cfg.Storage.MaxRuns, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	calc := eventbased.New(portfolio.Model, calcConfig)
	summary := calc.Run(ctx, portfolio.Jobs)

	if err := store.SaveRun(&summary); err != nil {
		logger.Error("Failed to save run %s: %v", summary.ID, err)
	} else {
		logger.Info("Run %s saved to %s", summary.ID, cfg.Storage.DBPath)
	}
	if err := store.RotateRuns(); err != nil {
		logger.Warn("Failed to rotate runs: %v", err)
	}

	fmt.Print(report.Format(&summary))

	if len(summary.Outputs) == 0 && len(portfolio.Jobs) > 0 {
		logger.Error("No asset completed")
		stop()
		_ = store.Close()
		os.Exit(1)
	}
}

func calculatorConfig(c config.CalculationConfig) (eventbased.Config, error) {
	mode, err := vulnerability.ParseMode(c.Sampling)
	if err != nil {
		return eventbased.Config{}, err
	}
	return eventbased.Config{
		ConditionalLossPoEs: c.ConditionalLossPoEs,
		Insured:             c.Insured,
		Mode:                mode,
		Seed:                c.Seed,
		CurveResolution:     c.CurveResolution,
		Workers:             c.Workers,
		AggregateBins:       c.AggregateBins,
	}, nil
}

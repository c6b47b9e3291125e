package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jchilling/TCGweb-health-checker/internal/audit"
	"github.com/jchilling/TCGweb-health-checker/internal/config"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to audit configuration file")
	sitesPath := flag.String("sites", "configs/sites.csv", "Path to the site list CSV")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := audit.NewLogger(cfg.Logging.Level, cfg.Logging.Structured)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logging: %v\n", err)
		os.Exit(1)
	}

	sites, err := audit.LoadSites(*sitesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load site list: %v\n", err)
		os.Exit(1)
	}

	runner, err := audit.NewRunner(*cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise runner: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	results, err := runner.Run(ctx, sites)
	logger.Info("audit run finished", "sites", len(results), "requested", len(sites))
	if closeErr := runner.Close(); closeErr != nil {
		logger.Warn("runner shutdown", "error", closeErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit finished with errors: %v\n", err)
		os.Exit(1)
	}
}

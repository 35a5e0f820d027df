package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wangharden/sell/pkg/config"
	"github.com/wangharden/sell/pkg/orchestrator"
)

const (
	appName    = "SellEngine"
	appVersion = "1.0.0"
)

var (
	configFile = flag.String("config", "./config/sellengine.json", "Configuration file path")
	dryRun     = flag.Bool("dry-run", false, "Override config: route sells through the dry-run probe transform")
	logFile    = flag.String("log-file", "", "Log file path (overrides nothing in config; console-only if empty)")
	version    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	printBanner()

	log.Printf("[Main] loading configuration from %s", *configFile)
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("[Main] failed to load config: %v", err)
	}
	log.Println("[Main] configuration loaded")

	if *dryRun {
		cfg.Trading.DryRun = true
		log.Println("[Main] dry-run mode forced on by --dry-run")
	}

	if *logFile != "" {
		setupFileLogging(*logFile)
	}

	printConfigSummary(cfg)

	eng, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("[Main] failed to build engine: %v", err)
	}
	log.Println("[Main] engine constructed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("[Main] failed to start engine: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Println("[Main] sell engine running, press Ctrl+C to stop")
	go printStatusPeriodically(eng, time.Minute)

	sig := <-sigChan
	log.Printf("[Main] received signal: %v", sig)

	log.Println("[Main] stopping engine")
	if err := eng.Stop(); err != nil {
		log.Printf("[Main] error during shutdown: %v", err)
		os.Exit(1)
	}
	log.Println("[Main] engine stopped")
}

func printBanner() {
	fmt.Println("============================================================")
	fmt.Printf("  %s v%s\n", appName, appVersion)
	fmt.Println("  automated A-share position-unwind engine")
	fmt.Println("============================================================")
}

func printConfigSummary(cfg *config.Config) {
	log.Println("[Main] ------------------------------------------------------------")
	log.Printf("[Main] account:        %s", cfg.Strategy.AccountID)
	log.Printf("[Main] watchlist csv:  %s", cfg.Strategy.CSVPath)
	log.Printf("[Main] input amount:   %.2f", cfg.Strategy.InputAmt)
	log.Printf("[Main] hold vol:       %d", cfg.Strategy.HoldVol)
	log.Printf("[Main] trading bridge: %s", cfg.Trading.URL())
	log.Printf("[Main] market feed:    %s", cfg.Market.URL())
	log.Printf("[Main] dry run:        %v", cfg.Trading.DryRun)
	log.Printf("[Main] modules:        sell=%v base_cancel=%v", cfg.Modules.Sell, cfg.Modules.BaseCancel)
	log.Println("[Main] ------------------------------------------------------------")
}

func setupFileLogging(path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("[Main] warning: failed to create log directory: %v", err)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("[Main] warning: failed to open log file: %v", err)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	log.Printf("[Main] logging to file: %s", path)
}

func printStatusPeriodically(eng *orchestrator.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		log.Printf("[Main] status: watchlist=%d symbols", len(eng.Watchlist().Symbols()))
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mbi/internal/breadth"
	"mbi/internal/calendar"
	"mbi/internal/config"
	"mbi/internal/fetch"
	"mbi/internal/scheduler"
	"mbi/internal/store"
	"mbi/internal/universe"
	"mbi/internal/util"
)

func main() {
	cfgPath := "config/mbi.yaml"
	if p := os.Getenv("MBI_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mbi-daemon: %v\n", err)
		os.Exit(1)
	}

	log := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(log)

	cal, err := calendar.New(cfg.Calendar.MetaDir)
	if err != nil {
		log.Error("calendar init failed", "error", err)
		os.Exit(1)
	}
	symbols, err := universe.Load(cfg.Universe.CSVPath)
	if err != nil {
		log.Error("universe load failed", "error", err)
		os.Exit(1)
	}
	breadthStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Error("breadth store init failed", "error", err)
		os.Exit(1)
	}

	provider, err := fetch.NewYahooProvider()
	if err != nil {
		log.Error("provider init failed", "error", err)
		os.Exit(1)
	}
	adapter := fetch.NewAdapter(
		provider,
		util.NewRateLimiter(cfg.Fetch.RateLimitPerMin),
		cfg.Fetch,
		log,
	)
	resolver := breadth.NewResolver(
		cal, symbols, adapter,
		store.NewParquetStore(cfg.Storage.DataDir), breadthStore,
		cfg.Pipeline, cfg.Fetch.MaxWorkers, log,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched, err := scheduler.New(ctx, resolver, cfg.Scheduler.DailyCron, log)
	if err != nil {
		log.Error("scheduler init failed", "error", err)
		os.Exit(1)
	}

	log.Info("mbi-daemon starting",
		"symbols", len(symbols), "cron", cfg.Scheduler.DailyCron)
	sched.Start()
	<-ctx.Done()
	sched.Stop()
	log.Info("mbi-daemon stopped")
}

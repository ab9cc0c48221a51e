package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stockpile/internal/config"
	"stockpile/internal/domain"
	"stockpile/internal/fetch"
	"stockpile/internal/markethours"
	"stockpile/internal/pipeline"
	"stockpile/internal/registry"
	"stockpile/internal/store"
	"stockpile/internal/util"
)

func main() {
	maintenance := flag.Bool("maintenance", false, "run the maintenance sweep (probe + retention purge) instead of collection")
	flag.Parse()

	// Credentials may live in a .env next to the binary; absence is fine.
	_ = godotenv.Load()

	cfgPath := "config/stockpile.yaml"
	if p := os.Getenv("STOCKPILE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/collectord-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, w)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()
	pstore := store.NewPostgresStore(pool)

	oracle := markethours.New(cfg.Alpaca.APIKey, cfg.Alpaca.SecretKey, cfg.Alpaca.BaseURL)
	client := fetch.NewHTTPClient(cfg.Alpaca.DataURL, cfg.Alpaca.APIKey, cfg.Alpaca.SecretKey, cfg.Alpaca.Feed)
	fetcher := fetch.New(client, oracle, fetch.Options{
		BatchSize:       cfg.Collect.BatchSize,
		MaxWorkers:      cfg.Collect.MaxWorkers,
		RateLimitPerMin: cfg.Collect.RateLimitPerMin,
	})
	reg := registry.New(pstore)

	pipe := pipeline.New(fetcher, reg, pstore, pipeline.Options{
		Interval:     domain.Interval(cfg.Collect.Interval),
		LookbackDays: cfg.Collect.LookbackDays,
	})

	if *maintenance {
		logger.Info("starting maintenance run", "logFile", logFileName,
			"retentionDays", cfg.Maintenance.RetentionDays)
		report, err := pipe.RunMaintenance(ctx, cfg.Maintenance.RetentionDays)
		if err != nil {
			log.Fatalf("maintenance run failed: %v", err)
		}
		logger.Info("maintenance report",
			"probed", report.Probed,
			"deactivated", report.Deactivated,
			"rowsPurged", report.RowsPurged,
		)
		return
	}

	logger.Info("starting collection run", "logFile", logFileName,
		"interval", cfg.Collect.Interval, "lookbackDays", cfg.Collect.LookbackDays)
	report, err := pipe.RunCollection(ctx)
	if err != nil {
		log.Fatalf("collection run failed: %v", err)
	}
	logger.Info("collection report",
		"processed", report.Processed,
		"rowsWritten", report.RowsWritten,
		"empty", report.Empty,
		"failed", report.Failed,
	)
	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}

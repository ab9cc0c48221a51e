package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"stockpile/internal/config"
	"stockpile/internal/store"
	"stockpile/internal/util"
)

// migrate applies the stockpile schema to the configured database. The DDL
// is idempotent; running it on every deploy is safe.
func main() {
	_ = godotenv.Load()

	cfgPath := "config/stockpile.yaml"
	if p := os.Getenv("STOCKPILE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	util.SetDefault(logger)

	ctx := context.Background()

	pool, err := store.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	logger.Info("schema applied", "database", cfg.Database.Name)
}

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the two collection tables. Statements are idempotent
// so migration can run on every deploy.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS symbols (
		id         BIGSERIAL PRIMARY KEY,
		ticker     VARCHAR(10) NOT NULL UNIQUE,
		name       VARCHAR(100),
		is_active  BOOLEAN NOT NULL DEFAULT TRUE,
		start_date TIMESTAMPTZ NOT NULL DEFAULT now(),
		end_date   TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_symbols_is_active ON symbols (is_active)`,
	`CREATE TABLE IF NOT EXISTS market_data (
		id          BIGSERIAL PRIMARY KEY,
		symbol      VARCHAR(10) NOT NULL,
		timestamp   TIMESTAMPTZ NOT NULL,
		open        DOUBLE PRECISION NOT NULL DEFAULT 0,
		high        DOUBLE PRECISION NOT NULL DEFAULT 0,
		low         DOUBLE PRECISION NOT NULL DEFAULT 0,
		close       DOUBLE PRECISION NOT NULL DEFAULT 0,
		volume      BIGINT NOT NULL DEFAULT 0,
		trade_count BIGINT NOT NULL DEFAULT 0,
		vwap        DOUBLE PRECISION NOT NULL DEFAULT 0,
		CONSTRAINT uix_market_data_symbol_timestamp UNIQUE (symbol, timestamp)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_market_data_timestamp ON market_data (timestamp)`,
}

// Migrate applies the schema to the connected database.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

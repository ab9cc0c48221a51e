// Package store provides durable, idempotent storage for bar rows and
// symbol lifecycle records, backed by PostgreSQL.
package store

import (
	"context"
	"time"

	"stockpile/internal/domain"
)

// BarStore persists normalized OHLCV rows keyed by (symbol, timestamp).
type BarStore interface {
	// UpsertBars writes a batch of bars for one symbol. Each row is an
	// atomic insert-or-update on the (symbol, timestamp) key; re-collecting
	// an overlapping window updates rows in place, never duplicates. A
	// single bad row is skipped and the batch continues; the batch commits
	// atomically at the end and a commit failure propagates. Returns the
	// number of rows written.
	UpsertBars(ctx context.Context, symbol string, bars []domain.Bar) (int, error)

	// PurgeOlderThan deletes all bar rows with a timestamp before cutoff
	// and returns the number deleted.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// CountBars returns the number of stored rows for a symbol.
	CountBars(ctx context.Context, symbol string) (int64, error)
}

// SymbolStore persists symbol lifecycle records. Symbols are never
// hard-deleted; deactivation is a soft delete via the active flag.
type SymbolStore interface {
	// UpsertSymbol inserts a new active symbol or reactivates an existing
	// one (active=true, end_date cleared) in a single atomic statement.
	// The name is only set on first insert. Returns the resulting record.
	UpsertSymbol(ctx context.Context, ticker, name string) (*domain.SymbolInfo, error)

	// Deactivate marks a symbol inactive and stamps its end date. Returns
	// false when the ticker is unknown; that is a reportable miss, not an
	// error.
	Deactivate(ctx context.Context, ticker string) (bool, error)

	// Rename updates a symbol's display name. Returns false when the
	// ticker is unknown.
	Rename(ctx context.Context, ticker, name string) (bool, error)

	// GetActive returns the tickers currently flagged for collection.
	GetActive(ctx context.Context) ([]string, error)

	// Get returns a detached snapshot of a symbol record, or nil when the
	// ticker is unknown.
	Get(ctx context.Context, ticker string) (*domain.SymbolInfo, error)
}

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockpile/internal/config"
	"stockpile/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*PostgresStore)(nil)
var _ SymbolStore = (*PostgresStore)(nil)

// PostgresStore implements BarStore and SymbolStore on a bounded pgx
// connection pool. The pool is explicitly constructed and owned by the
// caller; there is no shared global connection state.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPool builds the bounded connection pool for the configured database
// and verifies connectivity with a ping.
func NewPool(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	pc.MaxConns = cfg.MaxConns()
	pc.MaxConnLifetime = 30 * time.Minute // recycle connections periodically

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		log:  slog.Default().With("component", "store"),
	}
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

const upsertBarSQL = `
	INSERT INTO market_data (symbol, timestamp, open, high, low, close, volume, trade_count, vwap)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (symbol, timestamp) DO UPDATE SET
		open   = EXCLUDED.open,
		high   = EXCLUDED.high,
		low    = EXCLUDED.low,
		close  = EXCLUDED.close,
		volume = EXCLUDED.volume`

// UpsertBars writes one symbol's batch inside a single transaction. Every
// row runs under its own savepoint so an integrity error poisons only that
// row: it is rolled back, logged, and the loop continues. The final commit
// is the one failure that propagates, after rollback, since a silent partial
// commit would corrupt the idempotency guarantee.
func (s *PostgresStore) UpsertBars(ctx context.Context, symbol string, bars []domain.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning upsert transaction for %s: %w", symbol, err)
	}
	// Release the connection on every exit path; Rollback after a successful
	// Commit is a no-op.
	defer tx.Rollback(ctx)

	written := 0
	for _, bar := range bars {
		rowTx, err := tx.Begin(ctx) // savepoint
		if err != nil {
			return 0, fmt.Errorf("creating savepoint for %s: %w", symbol, err)
		}

		_, err = rowTx.Exec(ctx, upsertBarSQL,
			symbol,
			bar.Timestamp.UTC(),
			bar.Open,
			bar.High,
			bar.Low,
			bar.Close,
			bar.Volume,
			bar.TradeCount,
			bar.VWAP,
		)
		if err != nil {
			s.log.Warn("skipping bar row",
				"symbol", symbol, "timestamp", bar.Timestamp, "err", err)
			if rbErr := rowTx.Rollback(ctx); rbErr != nil {
				return 0, fmt.Errorf("rolling back savepoint for %s: %w", symbol, rbErr)
			}
			continue
		}

		if err := rowTx.Commit(ctx); err != nil {
			return 0, fmt.Errorf("releasing savepoint for %s: %w", symbol, err)
		}
		written++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing bar upsert for %s: %w", symbol, err)
	}
	return written, nil
}

// PurgeOlderThan deletes bar rows older than cutoff and returns the count.
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM market_data WHERE timestamp < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purging bars before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// CountBars returns the number of stored rows for a symbol.
func (s *PostgresStore) CountBars(ctx context.Context, symbol string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM market_data WHERE symbol = $1`, symbol).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting bars for %s: %w", symbol, err)
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// SymbolStore implementation
// ---------------------------------------------------------------------------

const symbolColumns = `ticker, COALESCE(name, ''), is_active, start_date, end_date, created_at, updated_at`

// UpsertSymbol inserts a new active symbol or reactivates an existing one in
// a single atomic statement, avoiding read-then-write races between
// concurrent collectors.
func (s *PostgresStore) UpsertSymbol(ctx context.Context, ticker, name string) (*domain.SymbolInfo, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO symbols (ticker, name, is_active, start_date)
		VALUES ($1, NULLIF($2, ''), TRUE, now())
		ON CONFLICT (ticker) DO UPDATE SET
			is_active  = TRUE,
			end_date   = NULL,
			updated_at = now()
		RETURNING `+symbolColumns,
		ticker, name)

	info, err := scanSymbol(row)
	if err != nil {
		return nil, fmt.Errorf("upserting symbol %s: %w", ticker, err)
	}
	return info, nil
}

// Deactivate marks a symbol inactive and stamps its end date.
func (s *PostgresStore) Deactivate(ctx context.Context, ticker string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE symbols
		SET is_active = FALSE, end_date = now(), updated_at = now()
		WHERE ticker = $1`,
		ticker)
	if err != nil {
		return false, fmt.Errorf("deactivating symbol %s: %w", ticker, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Rename updates a symbol's display name.
func (s *PostgresStore) Rename(ctx context.Context, ticker, name string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE symbols
		SET name = $2, updated_at = now()
		WHERE ticker = $1`,
		ticker, name)
	if err != nil {
		return false, fmt.Errorf("renaming symbol %s: %w", ticker, err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetActive returns the tickers currently flagged for collection. The set is
// re-read from storage every cycle; it is never cached in the core.
func (s *PostgresStore) GetActive(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ticker FROM symbols WHERE is_active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("listing active symbols: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning active symbol: %w", err)
		}
		tickers = append(tickers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing active symbols: %w", err)
	}
	return tickers, nil
}

// Get returns a detached snapshot of a symbol record, or nil when the ticker
// is unknown.
func (s *PostgresStore) Get(ctx context.Context, ticker string) (*domain.SymbolInfo, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+symbolColumns+` FROM symbols WHERE ticker = $1`, ticker)

	info, err := scanSymbol(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading symbol %s: %w", ticker, err)
	}
	return info, nil
}

func scanSymbol(row pgx.Row) (*domain.SymbolInfo, error) {
	info := &domain.SymbolInfo{}
	err := row.Scan(
		&info.Ticker,
		&info.Name,
		&info.IsActive,
		&info.StartDate,
		&info.EndDate,
		&info.CreatedAt,
		&info.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return info, nil
}

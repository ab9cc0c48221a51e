// Package registry is the single source of truth for which symbols should
// be collected. Symbols are soft-deleted only: a ticker toggles between
// active and inactive, never duplicating its row.
package registry

import (
	"context"
	"log/slog"

	"stockpile/internal/domain"
	"stockpile/internal/store"
)

// Registry owns the symbol activation lifecycle on top of a SymbolStore.
// Persistence failures propagate to the caller after the store rolls back;
// an unknown ticker is a reportable miss, not an error.
type Registry struct {
	symbols store.SymbolStore
	log     *slog.Logger
}

// New creates a Registry over the given symbol store.
func New(symbols store.SymbolStore) *Registry {
	return &Registry{
		symbols: symbols,
		log:     slog.Default().With("component", "registry"),
	}
}

// Add registers a ticker for collection. A new ticker is inserted active; an
// inactive ticker is reactivated with its end date cleared; an already
// active ticker is left as is. Returns the resulting record.
func (r *Registry) Add(ctx context.Context, ticker, name string) (*domain.SymbolInfo, error) {
	info, err := r.symbols.UpsertSymbol(ctx, ticker, name)
	if err != nil {
		return nil, err
	}
	r.log.Info("symbol registered", "ticker", ticker, "active", info.IsActive)
	return info, nil
}

// Deactivate marks a ticker inactive (delisted or dead). Returns false when
// the ticker is unknown.
func (r *Registry) Deactivate(ctx context.Context, ticker string) (bool, error) {
	ok, err := r.symbols.Deactivate(ctx, ticker)
	if err != nil {
		return false, err
	}
	if !ok {
		r.log.Warn("symbol not found", "ticker", ticker)
		return false, nil
	}
	r.log.Info("symbol deactivated", "ticker", ticker)
	return true, nil
}

// Rename updates a ticker's display name. Returns false when the ticker is
// unknown.
func (r *Registry) Rename(ctx context.Context, ticker, name string) (bool, error) {
	ok, err := r.symbols.Rename(ctx, ticker, name)
	if err != nil {
		return false, err
	}
	if !ok {
		r.log.Warn("symbol not found", "ticker", ticker)
		return false, nil
	}
	r.log.Info("symbol renamed", "ticker", ticker, "name", name)
	return true, nil
}

// GetActive returns the tickers currently flagged for collection. The set
// is re-read from storage on every call.
func (r *Registry) GetActive(ctx context.Context) ([]string, error) {
	return r.symbols.GetActive(ctx)
}

// GetInfo returns a detached snapshot of a symbol record, or nil when the
// ticker is unknown.
func (r *Registry) GetInfo(ctx context.Context, ticker string) (*domain.SymbolInfo, error) {
	return r.symbols.Get(ctx, ticker)
}

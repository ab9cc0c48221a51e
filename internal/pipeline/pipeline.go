// Package pipeline drives the collection and maintenance runs: read the
// active symbol set, fetch and normalize bars, persist them, and report
// what happened. Per-symbol problems degrade the report, never the run.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"stockpile/internal/domain"
)

// barFetcher is the upstream dependency. Fetch calls swallow their own
// errors and report absence through empty results.
type barFetcher interface {
	FetchMany(ctx context.Context, symbols []string, interval domain.Interval, lookbackDays int) map[string][]domain.Bar
	Probe(ctx context.Context, symbol string, interval domain.Interval) []domain.Bar
}

// symbolSource supplies the active set and the deactivation switch.
type symbolSource interface {
	GetActive(ctx context.Context) ([]string, error)
	Deactivate(ctx context.Context, ticker string) (bool, error)
}

// barSink persists normalized rows.
type barSink interface {
	UpsertBars(ctx context.Context, symbol string, bars []domain.Bar) (int, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Options tune a collection run.
type Options struct {
	// Interval is the bar granularity collected each run.
	Interval domain.Interval

	// LookbackDays is how far back each run re-requests data, overlapping
	// the previous run so upserts close any gaps.
	LookbackDays int
}

func (o Options) withDefaults() Options {
	if o.Interval == "" {
		o.Interval = domain.Interval1Hour
	}
	if o.LookbackDays <= 0 {
		o.LookbackDays = 1
	}
	return o
}

// CollectionReport summarizes one collection run.
type CollectionReport struct {
	// Processed is the number of active symbols the run covered.
	Processed int

	// RowsWritten is the total rows upserted across all symbols.
	RowsWritten int

	// Empty lists symbols the upstream returned no bars for.
	Empty []string

	// Failed lists symbols whose persistence failed.
	Failed []string
}

// MaintenanceReport summarizes one maintenance sweep.
type MaintenanceReport struct {
	// Probed is the number of active symbols checked for liveness.
	Probed int

	// Deactivated lists symbols turned off because their probe came back
	// empty.
	Deactivated []string

	// RowsPurged is the number of bar rows deleted by retention.
	RowsPurged int64
}

// Pipeline wires the symbol registry, the upstream fetcher and the bar
// store into scheduled runs.
type Pipeline struct {
	fetcher barFetcher
	symbols symbolSource
	bars    barSink
	opts    Options
	now     func() time.Time
	log     *slog.Logger
}

// New creates a Pipeline.
func New(fetcher barFetcher, symbols symbolSource, bars barSink, opts Options) *Pipeline {
	return &Pipeline{
		fetcher: fetcher,
		symbols: symbols,
		bars:    bars,
		opts:    opts.withDefaults(),
		now:     time.Now,
		log:     slog.Default().With("component", "pipeline"),
	}
}

// RunCollection executes one collection cycle over the current active set:
// fetch the latest window for every active symbol, persist per symbol, and
// report. An empty active set is a logged no-op. A symbol with no upstream
// data is recorded in Empty; a symbol whose write fails is recorded in
// Failed; neither aborts the run. Only failure to read the active set is
// fatal.
func (p *Pipeline) RunCollection(ctx context.Context) (CollectionReport, error) {
	var report CollectionReport

	active, err := p.symbols.GetActive(ctx)
	if err != nil {
		return report, err
	}
	if len(active) == 0 {
		p.log.Info("no active symbols, nothing to collect")
		return report, nil
	}

	p.log.Info("collection run starting",
		"symbols", len(active),
		"interval", string(p.opts.Interval),
		"lookbackDays", p.opts.LookbackDays,
	)

	fetched := p.fetcher.FetchMany(ctx, active, p.opts.Interval, p.opts.LookbackDays)

	report.Processed = len(active)
	for _, symbol := range active {
		bars, ok := fetched[symbol]
		if !ok || len(bars) == 0 {
			report.Empty = append(report.Empty, symbol)
			continue
		}

		written, err := p.bars.UpsertBars(ctx, symbol, bars)
		if err != nil {
			p.log.Error("persisting bars failed", "symbol", symbol, "err", err)
			report.Failed = append(report.Failed, symbol)
			continue
		}
		report.RowsWritten += written
	}

	sort.Strings(report.Empty)
	sort.Strings(report.Failed)

	p.log.Info("collection run finished",
		"processed", report.Processed,
		"rowsWritten", report.RowsWritten,
		"empty", len(report.Empty),
		"failed", len(report.Failed),
	)
	return report, nil
}

// RunMaintenance probes every active symbol with a one-day lookback and
// deactivates the ones that return no data, then purges bar rows older
// than the retention horizon. retentionDays <= 0 disables purging.
func (p *Pipeline) RunMaintenance(ctx context.Context, retentionDays int) (MaintenanceReport, error) {
	var report MaintenanceReport

	active, err := p.symbols.GetActive(ctx)
	if err != nil {
		return report, err
	}

	report.Probed = len(active)
	for _, symbol := range active {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		if bars := p.fetcher.Probe(ctx, symbol, p.opts.Interval); len(bars) > 0 {
			continue
		}

		p.log.Warn("symbol returned no data, deactivating", "symbol", symbol)
		ok, err := p.symbols.Deactivate(ctx, symbol)
		if err != nil {
			p.log.Error("deactivation failed", "symbol", symbol, "err", err)
			continue
		}
		if ok {
			report.Deactivated = append(report.Deactivated, symbol)
		}
	}
	sort.Strings(report.Deactivated)

	if retentionDays > 0 {
		cutoff := p.now().UTC().AddDate(0, 0, -retentionDays)
		purged, err := p.bars.PurgeOlderThan(ctx, cutoff)
		if err != nil {
			p.log.Error("retention purge failed", "cutoff", cutoff, "err", err)
			return report, err
		}
		report.RowsPurged = purged
	}

	p.log.Info("maintenance run finished",
		"probed", report.Probed,
		"deactivated", len(report.Deactivated),
		"rowsPurged", report.RowsPurged,
	)
	return report, nil
}

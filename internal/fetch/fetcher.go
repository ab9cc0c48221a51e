package fetch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"stockpile/internal/domain"
	"stockpile/internal/util"
)

// hoursOracle is the market-hours dependency used to pick fetch windows.
type hoursOracle interface {
	IsOpenNow() bool
	LastCloseBefore(now time.Time) time.Time
}

// chunkSpan is the sub-range size for long historical fetches.
const chunkSpan = 30 * 24 * time.Hour

// Options tune the fetcher's batching and pacing behaviour.
type Options struct {
	// BatchSize is the number of symbols grouped into one multi-symbol
	// request. The provider caps symbols per request.
	BatchSize int

	// MaxWorkers bounds the number of concurrent batch requests.
	MaxWorkers int

	// RateLimitPerMin paces requests to the provider.
	RateLimitPerMin int

	// ChunkRetry is applied to each time chunk of an extended fetch.
	ChunkRetry util.RetryPolicy
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 3
	}
	if o.RateLimitPerMin <= 0 {
		o.RateLimitPerMin = 200
	}
	if o.ChunkRetry.MaxAttempts == 0 {
		o.ChunkRetry = util.ConstantRetry(2, 3*time.Second)
	}
	return o
}

// Fetcher retrieves bars for one or many symbols and normalizes them into
// canonical rows. A single symbol's or batch's failure never aborts the
// wider call; it is logged and skipped.
type Fetcher struct {
	client  barsClient
	oracle  hoursOracle
	opts    Options
	limiter *util.RateLimiter
	now     func() time.Time
	log     *slog.Logger
}

// New creates a Fetcher over the given wire client and market-hours oracle.
func New(client barsClient, oracle hoursOracle, opts Options) *Fetcher {
	opts = opts.withDefaults()
	return &Fetcher{
		client:  client,
		oracle:  oracle,
		opts:    opts,
		limiter: util.NewRateLimiter(opts.RateLimitPerMin, 1),
		now:     time.Now,
		log:     slog.Default().With("component", "fetch"),
	}
}

// FetchRange returns normalized bars for one symbol over an explicit window.
// Upstream errors are logged and produce an empty result; one symbol's
// failure must not abort a batch.
func (f *Fetcher) FetchRange(ctx context.Context, symbol string, start, end time.Time, interval domain.Interval) []domain.Bar {
	window := f.effectiveWindow(domain.FetchWindow{Start: start, End: end, Interval: interval})

	records, err := f.getBars(ctx, []string{symbol}, window)
	if err != nil {
		f.log.Error("range fetch failed", "symbol", symbol,
			"start", window.Start, "end", window.End, "err", err)
		return nil
	}
	return NormalizeRecords(symbol, records[symbol], f.log)
}

// FetchLatest returns the most recent bars for one symbol, looking back
// lookbackDays from the market-aware window end: wall-clock now while the
// market is open, the most recent session close otherwise, so closed-market
// calls don't request a period with no data.
func (f *Fetcher) FetchLatest(ctx context.Context, symbol string, interval domain.Interval, lookbackDays int) []domain.Bar {
	window := f.latestWindow(interval, lookbackDays)
	return f.FetchRange(ctx, symbol, window.Start, window.End, window.Interval)
}

// Probe checks whether a symbol still yields data: one day of lookback at
// the given interval. Used by the maintenance sweep.
func (f *Fetcher) Probe(ctx context.Context, symbol string, interval domain.Interval) []domain.Bar {
	return f.FetchLatest(ctx, symbol, interval, 1)
}

// FetchMany returns the latest bars for many symbols, grouped into
// fixed-size batches to respect the provider's per-request symbol limit.
// Batches run on a bounded worker pool with token-bucket pacing between
// requests. A failed batch is logged and its symbols omitted; the remaining
// batches proceed.
func (f *Fetcher) FetchMany(ctx context.Context, symbols []string, interval domain.Interval, lookbackDays int) map[string][]domain.Bar {
	result := make(map[string][]domain.Bar)
	if len(symbols) == 0 {
		return result
	}

	window := f.latestWindow(interval, lookbackDays)

	var batches [][]string
	for i := 0; i < len(symbols); i += f.opts.BatchSize {
		end := min(i+f.opts.BatchSize, len(symbols))
		batches = append(batches, symbols[i:end])
	}

	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	workers := min(f.opts.MaxWorkers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batchIdx := range batchCh {
				if ctx.Err() != nil {
					return
				}

				batch := batches[batchIdx]
				records, err := f.getBars(ctx, batch, window)
				if err != nil {
					f.log.Error("batch fetch failed",
						"batch", batchIdx+1,
						"batches", len(batches),
						"symbols", len(batch),
						"err", err,
					)
					continue
				}

				mu.Lock()
				for _, symbol := range batch {
					recs, ok := records[symbol]
					if !ok {
						continue
					}
					if bars := NormalizeRecords(symbol, recs, f.log); len(bars) > 0 {
						result[symbol] = bars
					}
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return result
}

// FetchExtended fetches one symbol over a long historical range by splitting
// it into fixed-size time chunks, fetched sequentially with pacing. A failed
// chunk is retried once after a short pause; a chunk that still fails is
// logged and skipped, and the successful chunks are concatenated. Partial
// results are acceptable.
func (f *Fetcher) FetchExtended(ctx context.Context, symbol string, start, end time.Time, interval domain.Interval) []domain.Bar {
	window := f.effectiveWindow(domain.FetchWindow{Start: start, End: end, Interval: interval})

	var bars []domain.Bar
	failed := 0

	for chunkStart := window.Start; chunkStart.Before(window.End); chunkStart = chunkStart.Add(chunkSpan) {
		if ctx.Err() != nil {
			break
		}

		chunkEnd := chunkStart.Add(chunkSpan)
		if chunkEnd.After(window.End) {
			chunkEnd = window.End
		}
		chunk := domain.FetchWindow{Start: chunkStart, End: chunkEnd, Interval: window.Interval}

		var records map[string][]json.RawMessage
		err := f.opts.ChunkRetry.Do(ctx, func() error {
			var gerr error
			records, gerr = f.getBars(ctx, []string{symbol}, chunk)
			return gerr
		})
		if err != nil {
			failed++
			f.log.Error("chunk fetch failed, continuing",
				"symbol", symbol, "start", chunkStart, "end", chunkEnd, "err", err)
			continue
		}

		bars = append(bars, NormalizeRecords(symbol, records[symbol], f.log)...)
	}

	if failed > 0 {
		f.log.Warn("extended fetch completed with missing chunks",
			"symbol", symbol, "failedChunks", failed, "bars", len(bars))
	}
	return bars
}

// getBars paces one wire request through the rate limiter.
func (f *Fetcher) getBars(ctx context.Context, symbols []string, window domain.FetchWindow) (map[string][]json.RawMessage, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return f.client.GetBars(ctx, symbols, window.Interval.Timeframe(), window.Start, window.End)
}

// latestWindow computes the market-aware window for latest-bar fetches.
func (f *Fetcher) latestWindow(interval domain.Interval, lookbackDays int) domain.FetchWindow {
	if lookbackDays <= 0 {
		lookbackDays = 1
	}

	end := f.now().UTC()
	if !f.oracle.IsOpenNow() {
		end = f.oracle.LastCloseBefore(end)
	}

	return f.effectiveWindow(domain.FetchWindow{
		Start:    end.Add(-time.Duration(lookbackDays) * 24 * time.Hour),
		End:      end,
		Interval: interval,
	})
}

// effectiveWindow applies the long-range escalation policy with a warning.
func (f *Fetcher) effectiveWindow(window domain.FetchWindow) domain.FetchWindow {
	effective, escalated := window.Effective()
	if escalated {
		f.log.Warn("escalating intraday request to daily granularity",
			"start", window.Start, "end", window.End, "interval", window.Interval)
	}
	return effective
}

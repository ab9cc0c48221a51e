// Package domain defines the core data types shared across the collection
// pipeline: OHLCV bars, symbol lifecycle records, intervals, and fetch
// windows.
package domain

import "time"

// ---------------------------------------------------------------------------
// Bars
// ---------------------------------------------------------------------------

// Bar is one OHLCV observation for one symbol at one instant. Timestamps are
// normalized to UTC before a Bar leaves the fetch layer.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

// SymbolInfo is a detached snapshot of a symbol's lifecycle record. It is a
// copy of the stored row, never live-bound to a database session.
type SymbolInfo struct {
	Ticker    string
	Name      string
	IsActive  bool
	StartDate time.Time
	EndDate   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ---------------------------------------------------------------------------
// Intervals
// ---------------------------------------------------------------------------

// Interval is a human-readable bar granularity ("1m", "1h", "1d", ...).
type Interval string

const (
	Interval1Min  Interval = "1m"
	Interval5Min  Interval = "5m"
	Interval15Min Interval = "15m"
	Interval30Min Interval = "30m"
	Interval1Hour Interval = "1h"
	Interval1Day  Interval = "1d"
)

// Timeframe maps the interval to the provider's timeframe string. Unknown
// intervals fall back to hourly.
func (i Interval) Timeframe() string {
	switch i {
	case Interval1Min:
		return "1Min"
	case Interval5Min:
		return "5Min"
	case Interval15Min:
		return "15Min"
	case Interval30Min:
		return "30Min"
	case Interval1Hour:
		return "1Hour"
	case Interval1Day:
		return "1Day"
	default:
		return "1Hour"
	}
}

// IsIntraday reports whether the interval is finer than one day.
func (i Interval) IsIntraday() bool {
	switch i {
	case Interval1Day:
		return false
	case Interval1Min, Interval5Min, Interval15Min, Interval30Min, Interval1Hour:
		return true
	default:
		// Unknown intervals map to hourly.
		return true
	}
}

// maxIntradaySpan bounds the range an intraday request may cover before it
// is escalated to daily granularity to keep request sizes bounded.
const maxIntradaySpan = 365 * 24 * time.Hour

// ---------------------------------------------------------------------------
// Fetch windows
// ---------------------------------------------------------------------------

// FetchWindow is the derived (start, end, interval) tuple for one upstream
// request. It is computed per call and never persisted.
type FetchWindow struct {
	Start    time.Time
	End      time.Time
	Interval Interval
}

// Span returns the window's duration.
func (w FetchWindow) Span() time.Duration {
	return w.End.Sub(w.Start)
}

// Effective returns the window with the long-range policy applied: any
// request spanning more than a year at intraday granularity is escalated to
// daily bars. The second return reports whether escalation happened, so the
// caller can log a warning.
func (w FetchWindow) Effective() (FetchWindow, bool) {
	if w.Interval.IsIntraday() && w.Span() > maxIntradaySpan {
		w.Interval = Interval1Day
		return w, true
	}
	return w, false
}

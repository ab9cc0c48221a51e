package domain

import (
	"testing"
	"time"
)

func TestBarZeroValue(t *testing.T) {
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}
	if bar.Volume != 0 || bar.TradeCount != 0 || bar.VWAP != 0 {
		t.Error("expected zero Volume/TradeCount/VWAP for zero-value Bar")
	}
}

func TestIntervalTimeframe(t *testing.T) {
	cases := []struct {
		interval Interval
		want     string
	}{
		{Interval1Min, "1Min"},
		{Interval5Min, "5Min"},
		{Interval15Min, "15Min"},
		{Interval30Min, "30Min"},
		{Interval1Hour, "1Hour"},
		{Interval1Day, "1Day"},
		{Interval("2w"), "1Hour"}, // unknown intervals default to hourly
		{Interval(""), "1Hour"},
	}

	for _, tc := range cases {
		if got := tc.interval.Timeframe(); got != tc.want {
			t.Errorf("Timeframe(%q) = %q, want %q", tc.interval, got, tc.want)
		}
	}
}

func TestFetchWindowEffective(t *testing.T) {
	end := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	// Short intraday window stays intraday.
	w := FetchWindow{Start: end.AddDate(0, 0, -30), End: end, Interval: Interval1Hour}
	got, escalated := w.Effective()
	if escalated {
		t.Error("30-day hourly window should not escalate")
	}
	if got.Interval != Interval1Hour {
		t.Errorf("interval = %q, want %q", got.Interval, Interval1Hour)
	}

	// Multi-year hourly window escalates to daily.
	w = FetchWindow{Start: end.AddDate(-2, 0, 0), End: end, Interval: Interval1Hour}
	got, escalated = w.Effective()
	if !escalated {
		t.Error("2-year hourly window should escalate to daily")
	}
	if got.Interval != Interval1Day {
		t.Errorf("interval = %q, want %q", got.Interval, Interval1Day)
	}

	// Multi-year daily window is left alone.
	w = FetchWindow{Start: end.AddDate(-2, 0, 0), End: end, Interval: Interval1Day}
	if _, escalated = w.Effective(); escalated {
		t.Error("daily window should never escalate")
	}
}

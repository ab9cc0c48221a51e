package fetch

import (
	"encoding/json"
	"testing"
	"time"
)

func rawRecords(t *testing.T, records ...string) []json.RawMessage {
	t.Helper()
	raw := make([]json.RawMessage, len(records))
	for i, r := range records {
		raw[i] = json.RawMessage(r)
	}
	return raw
}

func TestNormalizeAbbreviatedKeys(t *testing.T) {
	records := rawRecords(t,
		`{"t":"2024-06-14T14:00:00Z","o":185.1,"h":186.2,"l":184.9,"c":185.8,"v":123456,"n":2345,"vw":185.5}`,
	)

	bars := NormalizeRecords("AAPL", records, nil)
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(bars))
	}

	b := bars[0]
	if b.Symbol != "AAPL" {
		t.Errorf("Symbol = %q", b.Symbol)
	}
	if want := time.Date(2024, 6, 14, 14, 0, 0, 0, time.UTC); !b.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", b.Timestamp, want)
	}
	if b.Open != 185.1 || b.High != 186.2 || b.Low != 184.9 || b.Close != 185.8 {
		t.Errorf("OHLC = %v/%v/%v/%v", b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume != 123456 || b.TradeCount != 2345 || b.VWAP != 185.5 {
		t.Errorf("Volume/TradeCount/VWAP = %v/%v/%v", b.Volume, b.TradeCount, b.VWAP)
	}
}

func TestNormalizeFullNames(t *testing.T) {
	records := rawRecords(t,
		`{"timestamp":"2024-06-14T14:00:00Z","open":185.1,"high":186.2,"low":184.9,"close":185.8,"volume":123456,"trade_count":2345,"vwap":185.5}`,
	)

	bars := NormalizeRecords("AAPL", records, nil)
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(bars))
	}
	if bars[0].Open != 185.1 || bars[0].Volume != 123456 || bars[0].TradeCount != 2345 {
		t.Errorf("unexpected bar %+v", bars[0])
	}
}

func TestNormalizeNestedCell(t *testing.T) {
	records := rawRecords(t,
		`{"bar":{"t":"2024-06-14T14:00:00Z","o":185.1,"h":186.2,"l":184.9,"c":185.8,"v":123456}}`,
	)

	bars := NormalizeRecords("AAPL", records, nil)
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(bars))
	}
	if bars[0].Close != 185.8 || bars[0].Volume != 123456 {
		t.Errorf("unexpected bar %+v", bars[0])
	}
}

func TestNormalizeAllShapesAgree(t *testing.T) {
	abbrev := rawRecords(t, `{"t":"2024-06-14T14:00:00Z","o":1,"h":2,"l":0.5,"c":1.5,"v":10,"n":3,"vw":1.2}`)
	full := rawRecords(t, `{"timestamp":"2024-06-14T14:00:00Z","open":1,"high":2,"low":0.5,"close":1.5,"volume":10,"trade_count":3,"vwap":1.2}`)
	nested := rawRecords(t, `{"bar":{"t":"2024-06-14T14:00:00Z","o":1,"h":2,"l":0.5,"c":1.5,"v":10,"n":3,"vw":1.2}}`)

	a := NormalizeRecords("X", abbrev, nil)
	b := NormalizeRecords("X", full, nil)
	c := NormalizeRecords("X", nested, nil)

	if len(a) != 1 || len(b) != 1 || len(c) != 1 {
		t.Fatalf("lengths = %d/%d/%d, want 1/1/1", len(a), len(b), len(c))
	}
	if a[0] != b[0] || b[0] != c[0] {
		t.Errorf("shapes disagree:\n  abbrev %+v\n  full   %+v\n  nested %+v", a[0], b[0], c[0])
	}
}

func TestNormalizeMissingFieldsDefaultToZero(t *testing.T) {
	records := rawRecords(t, `{"t":"2024-06-14T14:00:00Z","c":185.8}`)

	bars := NormalizeRecords("AAPL", records, nil)
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(bars))
	}
	b := bars[0]
	if b.Open != 0 || b.High != 0 || b.Low != 0 || b.Volume != 0 || b.TradeCount != 0 || b.VWAP != 0 {
		t.Errorf("missing fields should default to zero: %+v", b)
	}
	if b.Close != 185.8 {
		t.Errorf("Close = %v, want 185.8", b.Close)
	}
}

func TestNormalizeEpochMillisTimestamp(t *testing.T) {
	// 2024-06-14T14:00:00Z in milliseconds since the epoch.
	const ms = 1718373600000

	records := rawRecords(t,
		`{"t":1718373600000,"c":1}`,
		`{"t":"1718373600000","c":2}`,
	)

	bars := NormalizeRecords("AAPL", records, nil)
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	want := time.UnixMilli(ms).UTC()
	for _, b := range bars {
		if !b.Timestamp.Equal(want) {
			t.Errorf("Timestamp = %v, want %v", b.Timestamp, want)
		}
	}
}

func TestNormalizeDropsMalformedTimestamps(t *testing.T) {
	records := rawRecords(t,
		`{"t":"not-a-time","c":1}`,
		`{"c":1}`,
		`{"t":"2024-06-14T14:00:00Z","c":2}`,
		`"not an object"`,
	)

	bars := NormalizeRecords("AAPL", records, nil)
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1 (malformed rows dropped, not raised)", len(bars))
	}
	if bars[0].Close != 2 {
		t.Errorf("surviving bar = %+v", bars[0])
	}
}

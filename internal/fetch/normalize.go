package fetch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"stockpile/internal/domain"
)

// The provider is inconsistent about response shapes: records arrive with
// full column names, with single-letter abbreviated keys, or wrapped in a
// nested per-symbol cell. Each shape gets its own decode path, and the shape
// is decided once per record here at the boundary.

// recordShape tags the closed set of raw record variants.
type recordShape int

const (
	shapeFull recordShape = iota
	shapeAbbreviated
	shapeNested
)

// abbreviated-to-canonical field mapping:
// o→open, h→high, l→low, c→close, v→volume, n→trade_count, vw→vwap, t→timestamp.

// abbreviatedRecord is a record keyed by single-letter field names.
type abbreviatedRecord struct {
	Open       float64         `json:"o"`
	High       float64         `json:"h"`
	Low        float64         `json:"l"`
	Close      float64         `json:"c"`
	Volume     float64         `json:"v"`
	TradeCount float64         `json:"n"`
	VWAP       float64         `json:"vw"`
	Timestamp  json.RawMessage `json:"t"`
}

// fullRecord is a record keyed by canonical column names.
type fullRecord struct {
	Open       float64         `json:"open"`
	High       float64         `json:"high"`
	Low        float64         `json:"low"`
	Close      float64         `json:"close"`
	Volume     float64         `json:"volume"`
	TradeCount float64         `json:"trade_count"`
	VWAP       float64         `json:"vwap"`
	Timestamp  json.RawMessage `json:"timestamp"`
}

// nestedRecord is a per-symbol cell wrapping the actual record.
type nestedRecord struct {
	Bar json.RawMessage `json:"bar"`
}

// NormalizeRecords converts raw per-symbol records into canonical bars.
// Records with unparseable timestamps are dropped with a warning; a
// malformed record must never crash the pipeline. Missing numeric fields
// default to zero by construction of the decode structs.
func NormalizeRecords(symbol string, records []json.RawMessage, log *slog.Logger) []domain.Bar {
	if log == nil {
		log = slog.Default()
	}

	bars := make([]domain.Bar, 0, len(records))
	for _, raw := range records {
		bar, err := normalizeRecord(symbol, raw)
		if err != nil {
			log.Warn("dropping malformed bar record", "symbol", symbol, "err", err)
			continue
		}
		bars = append(bars, bar)
	}
	return bars
}

func normalizeRecord(symbol string, raw json.RawMessage) (domain.Bar, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return domain.Bar{}, fmt.Errorf("record is not an object: %w", err)
	}

	switch classifyRecord(keys) {
	case shapeNested:
		var nested nestedRecord
		if err := json.Unmarshal(raw, &nested); err != nil {
			return domain.Bar{}, fmt.Errorf("decoding nested cell: %w", err)
		}
		return normalizeRecord(symbol, nested.Bar)

	case shapeAbbreviated:
		var rec abbreviatedRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return domain.Bar{}, fmt.Errorf("decoding abbreviated record: %w", err)
		}
		ts, err := parseTimestamp(rec.Timestamp)
		if err != nil {
			return domain.Bar{}, err
		}
		return domain.Bar{
			Symbol:     symbol,
			Timestamp:  ts,
			Open:       rec.Open,
			High:       rec.High,
			Low:        rec.Low,
			Close:      rec.Close,
			Volume:     int64(rec.Volume),
			TradeCount: int64(rec.TradeCount),
			VWAP:       rec.VWAP,
		}, nil

	default:
		var rec fullRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return domain.Bar{}, fmt.Errorf("decoding record: %w", err)
		}
		ts, err := parseTimestamp(rec.Timestamp)
		if err != nil {
			return domain.Bar{}, err
		}
		return domain.Bar{
			Symbol:     symbol,
			Timestamp:  ts,
			Open:       rec.Open,
			High:       rec.High,
			Low:        rec.Low,
			Close:      rec.Close,
			Volume:     int64(rec.Volume),
			TradeCount: int64(rec.TradeCount),
			VWAP:       rec.VWAP,
		}, nil
	}
}

// classifyRecord inspects a record's keys once and picks its decode path.
func classifyRecord(keys map[string]json.RawMessage) recordShape {
	if _, ok := keys["bar"]; ok {
		return shapeNested
	}
	if _, ok := keys["t"]; ok {
		return shapeAbbreviated
	}
	if _, ok := keys["o"]; ok {
		return shapeAbbreviated
	}
	return shapeFull
}

// parseTimestamp accepts an ISO-8601 string or milliseconds since the epoch
// (as a JSON number or numeric string). Anything else is an error and the
// record is discarded by the caller.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts.UTC(), nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unparseable timestamp %s", string(raw))
}

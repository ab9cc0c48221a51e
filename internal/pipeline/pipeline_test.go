package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"stockpile/internal/domain"
)

type fakeFetcher struct {
	bars map[string][]domain.Bar
}

func (f *fakeFetcher) FetchMany(_ context.Context, symbols []string, _ domain.Interval, _ int) map[string][]domain.Bar {
	out := make(map[string][]domain.Bar)
	for _, s := range symbols {
		if bars, ok := f.bars[s]; ok && len(bars) > 0 {
			out[s] = bars
		}
	}
	return out
}

func (f *fakeFetcher) Probe(_ context.Context, symbol string, _ domain.Interval) []domain.Bar {
	return f.bars[symbol]
}

type fakeSymbols struct {
	active      []string
	activeErr   error
	deactivated []string
}

func (f *fakeSymbols) GetActive(context.Context) ([]string, error) {
	return f.active, f.activeErr
}

func (f *fakeSymbols) Deactivate(_ context.Context, ticker string) (bool, error) {
	f.deactivated = append(f.deactivated, ticker)
	return true, nil
}

type fakeSink struct {
	written   map[string]int
	failOn    map[string]bool
	purged    int64
	purgeErr  error
	purgeFrom time.Time
}

func (f *fakeSink) UpsertBars(_ context.Context, symbol string, bars []domain.Bar) (int, error) {
	if f.failOn[symbol] {
		return 0, errors.New("commit failed")
	}
	if f.written == nil {
		f.written = make(map[string]int)
	}
	f.written[symbol] += len(bars)
	return len(bars), nil
}

func (f *fakeSink) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.purgeFrom = cutoff
	return f.purged, f.purgeErr
}

func someBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	base := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = domain.Bar{Timestamp: base.Add(time.Duration(i) * time.Hour), Close: float64(i)}
	}
	return bars
}

func TestRunCollection(t *testing.T) {
	fetcher := &fakeFetcher{bars: map[string][]domain.Bar{
		"AAPL": someBars(3),
		"MSFT": someBars(2),
		"BAD":  someBars(1),
	}}
	symbols := &fakeSymbols{active: []string{"AAPL", "MSFT", "GONE", "BAD"}}
	sink := &fakeSink{failOn: map[string]bool{"BAD": true}}

	p := New(fetcher, symbols, sink, Options{Interval: domain.Interval1Hour, LookbackDays: 1})

	report, err := p.RunCollection(context.Background())
	if err != nil {
		t.Fatalf("RunCollection: %v", err)
	}

	if report.Processed != 4 {
		t.Errorf("Processed = %d, want 4", report.Processed)
	}
	if report.RowsWritten != 5 {
		t.Errorf("RowsWritten = %d, want 5", report.RowsWritten)
	}
	if !reflect.DeepEqual(report.Empty, []string{"GONE"}) {
		t.Errorf("Empty = %v, want [GONE]", report.Empty)
	}
	// A failed commit is recorded but must not abort the run.
	if !reflect.DeepEqual(report.Failed, []string{"BAD"}) {
		t.Errorf("Failed = %v, want [BAD]", report.Failed)
	}
	if sink.written["AAPL"] != 3 || sink.written["MSFT"] != 2 {
		t.Errorf("written = %v", sink.written)
	}
}

func TestRunCollectionEmptyActiveSet(t *testing.T) {
	fetcher := &fakeFetcher{}
	symbols := &fakeSymbols{}
	sink := &fakeSink{}

	p := New(fetcher, symbols, sink, Options{})

	report, err := p.RunCollection(context.Background())
	if err != nil {
		t.Fatalf("RunCollection: %v", err)
	}
	if report.Processed != 0 || report.RowsWritten != 0 {
		t.Errorf("empty active set should be a no-op, got %+v", report)
	}
	if len(sink.written) != 0 {
		t.Errorf("no writes expected, got %v", sink.written)
	}
}

func TestRunCollectionActiveSetError(t *testing.T) {
	symbols := &fakeSymbols{activeErr: errors.New("db down")}
	p := New(&fakeFetcher{}, symbols, &fakeSink{}, Options{})

	if _, err := p.RunCollection(context.Background()); err == nil {
		t.Fatal("active-set read failure should be fatal to the run")
	}
}

func TestRunMaintenanceDeactivatesDeadSymbols(t *testing.T) {
	fetcher := &fakeFetcher{bars: map[string][]domain.Bar{
		"AAPL": someBars(1),
	}}
	symbols := &fakeSymbols{active: []string{"AAPL", "DEAD1", "DEAD2"}}
	sink := &fakeSink{purged: 42}

	p := New(fetcher, symbols, sink, Options{Interval: domain.Interval1Hour})

	report, err := p.RunMaintenance(context.Background(), 730)
	if err != nil {
		t.Fatalf("RunMaintenance: %v", err)
	}

	if report.Probed != 3 {
		t.Errorf("Probed = %d, want 3", report.Probed)
	}
	if !reflect.DeepEqual(report.Deactivated, []string{"DEAD1", "DEAD2"}) {
		t.Errorf("Deactivated = %v, want [DEAD1 DEAD2]", report.Deactivated)
	}
	if report.RowsPurged != 42 {
		t.Errorf("RowsPurged = %d, want 42", report.RowsPurged)
	}

	// Cutoff must sit retentionDays behind now.
	wantCutoff := time.Now().UTC().AddDate(0, 0, -730)
	if diff := sink.purgeFrom.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("purge cutoff = %v, want about %v", sink.purgeFrom, wantCutoff)
	}
}

func TestRunMaintenanceRetentionDisabled(t *testing.T) {
	fetcher := &fakeFetcher{bars: map[string][]domain.Bar{"AAPL": someBars(1)}}
	symbols := &fakeSymbols{active: []string{"AAPL"}}
	sink := &fakeSink{purged: 99}

	p := New(fetcher, symbols, sink, Options{})

	report, err := p.RunMaintenance(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunMaintenance: %v", err)
	}
	if report.RowsPurged != 0 {
		t.Errorf("RowsPurged = %d, want 0 with retention disabled", report.RowsPurged)
	}
	if !sink.purgeFrom.IsZero() {
		t.Error("purge should not run when retentionDays <= 0")
	}
}

func TestRunMaintenancePurgeErrorPropagates(t *testing.T) {
	symbols := &fakeSymbols{active: []string{"AAPL"}}
	fetcher := &fakeFetcher{bars: map[string][]domain.Bar{"AAPL": someBars(1)}}
	sink := &fakeSink{purgeErr: errors.New("deadlock")}

	p := New(fetcher, symbols, sink, Options{})

	report, err := p.RunMaintenance(context.Background(), 30)
	if err == nil {
		t.Fatal("purge failure should propagate")
	}
	// The probe phase still completed and is reflected in the report.
	if report.Probed != 1 {
		t.Errorf("Probed = %d, want 1", report.Probed)
	}
}

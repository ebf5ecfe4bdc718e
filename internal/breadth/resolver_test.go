package breadth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"mbi/internal/calendar"
	"mbi/internal/config"
	"mbi/internal/domain"
	"mbi/internal/fetch"
	"mbi/internal/util"
)

// memBreadthStore is an in-memory BreadthStore for tests.
type memBreadthStore struct {
	recs map[string]domain.BreadthRecord
}

func newMemBreadthStore() *memBreadthStore {
	return &memBreadthStore{recs: make(map[string]domain.BreadthRecord)}
}

func (s *memBreadthStore) WriteRecord(ctx context.Context, rec domain.BreadthRecord) error {
	s.recs[rec.Date.Format(domain.DateLayout)] = rec
	return nil
}

func (s *memBreadthStore) ReadRange(ctx context.Context, start, end time.Time) ([]domain.BreadthRecord, error) {
	var out []domain.BreadthRecord
	for _, rec := range s.recs {
		if !rec.Date.Before(start) && !rec.Date.After(end) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *memBreadthStore) MaxDate(ctx context.Context) (time.Time, bool, error) {
	var max time.Time
	for _, rec := range s.recs {
		if rec.Date.After(max) {
			max = rec.Date
		}
	}
	if max.IsZero() {
		return time.Time{}, false, nil
	}
	return max, true, nil
}

// weekdayProvider serves deterministic bars for every weekday in the
// requested range. Symbols listed in fail always error permanently.
type weekdayProvider struct {
	fail map[string]bool

	mu    sync.Mutex
	calls int
}

func (p *weekdayProvider) Name() string { return "fake" }

func (p *weekdayProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *weekdayProvider) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.fail[symbol] {
		return nil, util.Permanent(errors.New("no data found, symbol may be delisted"))
	}
	var bars []domain.Bar
	for d := domain.Day(start); !d.After(domain.Day(end)); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		c := 100 + float64(d.YearDay()%30)
		bars = append(bars, domain.Bar{
			Symbol: symbol, Date: d,
			Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000,
		})
	}
	return bars, nil
}

// writeEmptyHolidayFiles gives the calendar weekend-only years around now.
func writeEmptyHolidayFiles(t *testing.T, metaDir string) {
	t.Helper()
	year := time.Now().Year()
	for _, y := range []int{year - 2, year - 1, year} {
		body := fmt.Sprintf(`{"year": %d, "holidays": []}`, y)
		path := filepath.Join(metaDir, fmt.Sprintf("nse_holidays_%d.json", y))
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("writing holiday file: %v", err)
		}
	}
}

type resolverFixture struct {
	resolver *Resolver
	cal      *calendar.Calendar
	bars     *memBarStore
	breadth  *memBreadthStore
	provider *weekdayProvider
}

func newResolverFixture(t *testing.T, universe []string, fail map[string]bool) *resolverFixture {
	t.Helper()

	metaDir := t.TempDir()
	writeEmptyHolidayFiles(t, metaDir)
	cal, err := calendar.New(metaDir)
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}

	provider := &weekdayProvider{fail: fail}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := fetch.NewAdapter(provider, util.NewRateLimiter(0), config.Fetch{
		MaxAttempts:       1,
		BaseDelaySec:      0,
		MaxDelaySec:       0,
		AttemptTimeoutSec: 5,
	}, log)

	bars := newMemBarStore()
	breadth := newMemBreadthStore()
	pipeline := config.Pipeline{
		SMAPeriods:      []int{2},
		ChangeThreshold: 4.5,
		MinValidSymbols: 1,
		LookbackDays:    10,
		Window52W:       5,
	}

	return &resolverFixture{
		resolver: NewResolver(cal, universe, adapter, bars, breadth, pipeline, 2, log),
		cal:      cal,
		bars:     bars,
		breadth:  breadth,
		provider: provider,
	}
}

func TestRunLatestIsIdempotent(t *testing.T) {
	f := newResolverFixture(t, []string{"INFY", "TCS"}, nil)
	ctx := context.Background()

	latest, err := f.cal.PreviousTradingDay(f.cal.Today())
	if err != nil {
		t.Fatalf("PreviousTradingDay: %v", err)
	}

	for i := 0; i < 2; i++ {
		report, err := f.resolver.Run(ctx, ModeLatest)
		if err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
		if len(report.Outcomes) != 1 {
			t.Fatalf("Run #%d: %d outcomes, want 1", i+1, len(report.Outcomes))
		}
		if got := report.Outcomes[0]; got.Status != StatusComputed {
			t.Fatalf("Run #%d: status %s (err %v), want computed", i+1, got.Status, got.Err)
		}
	}

	if len(f.breadth.recs) != 1 {
		t.Fatalf("%d stored records after recompute, want 1", len(f.breadth.recs))
	}
	if _, ok := f.breadth.recs[latest.Format(domain.DateLayout)]; !ok {
		t.Errorf("no record stored for latest trading day %s", latest.Format(domain.DateLayout))
	}
}

func TestRunGapFillPicksMissingDates(t *testing.T) {
	f := newResolverFixture(t, []string{"INFY"}, nil)
	ctx := context.Background()

	latest, err := f.cal.PreviousTradingDay(f.cal.Today())
	if err != nil {
		t.Fatalf("PreviousTradingDay: %v", err)
	}
	anchor := latest
	for i := 0; i < 3; i++ {
		anchor, err = f.cal.PreviousTradingDay(anchor)
		if err != nil {
			t.Fatalf("PreviousTradingDay: %v", err)
		}
	}
	if err := f.breadth.WriteRecord(ctx, domain.BreadthRecord{Date: anchor}); err != nil {
		t.Fatalf("seeding record: %v", err)
	}

	want, err := f.cal.TradingDaysBetween(anchor.AddDate(0, 0, 1), latest)
	if err != nil {
		t.Fatalf("TradingDaysBetween: %v", err)
	}

	report, err := f.resolver.Run(ctx, ModeGapFill)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.Outcomes) != len(want) {
		t.Fatalf("%d outcomes, want %d", len(report.Outcomes), len(want))
	}
	for i, o := range report.Outcomes {
		if !o.Date.Equal(want[i]) {
			t.Errorf("outcome %d date %s, want %s", i,
				o.Date.Format(domain.DateLayout), want[i].Format(domain.DateLayout))
		}
		if o.Status != StatusComputed {
			t.Errorf("outcome %d status %s (err %v), want computed", i, o.Status, o.Err)
		}
	}
	// The seeded anchor record plus one per filled gap.
	if len(f.breadth.recs) != len(want)+1 {
		t.Errorf("%d stored records, want %d", len(f.breadth.recs), len(want)+1)
	}
}

func TestRunGapFillEmptyStoreBackfills(t *testing.T) {
	f := newResolverFixture(t, []string{"INFY"}, nil)
	ctx := context.Background()

	latest, err := f.cal.PreviousTradingDay(f.cal.Today())
	if err != nil {
		t.Fatalf("PreviousTradingDay: %v", err)
	}
	want, err := f.cal.TradingDaysBetween(latest.AddDate(0, 0, -10), latest)
	if err != nil {
		t.Fatalf("TradingDaysBetween: %v", err)
	}

	report, err := f.resolver.Run(ctx, ModeGapFill)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.Outcomes) != len(want) {
		t.Fatalf("%d outcomes, want %d", len(report.Outcomes), len(want))
	}
	computed, skipped, failed := report.Counts()
	if computed != len(want) || skipped != 0 || failed != 0 {
		t.Errorf("counts = (%d, %d, %d), want (%d, 0, 0)", computed, skipped, failed, len(want))
	}
}

func TestRunGapFillUpToDateDoesNothing(t *testing.T) {
	f := newResolverFixture(t, []string{"INFY"}, nil)
	ctx := context.Background()

	latest, err := f.cal.PreviousTradingDay(f.cal.Today())
	if err != nil {
		t.Fatalf("PreviousTradingDay: %v", err)
	}
	if err := f.breadth.WriteRecord(ctx, domain.BreadthRecord{Date: latest}); err != nil {
		t.Fatalf("seeding record: %v", err)
	}

	report, err := f.resolver.Run(ctx, ModeGapFill)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Outcomes) != 0 {
		t.Errorf("%d outcomes on an up-to-date store, want 0", len(report.Outcomes))
	}
	if n := f.provider.callCount(); n != 0 {
		t.Errorf("%d provider calls on an up-to-date store, want 0", n)
	}
}

func TestRunIsolatesSymbolFailures(t *testing.T) {
	f := newResolverFixture(t, []string{"GOOD", "BAD"}, map[string]bool{"BAD": true})
	ctx := context.Background()

	report, err := f.resolver.Run(ctx, ModeLatest)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Outcomes) != 1 {
		t.Fatalf("%d outcomes, want 1", len(report.Outcomes))
	}

	o := report.Outcomes[0]
	if o.Status != StatusComputed {
		t.Fatalf("status %s (err %v), want computed despite a symbol failure", o.Status, o.Err)
	}
	if len(o.Failures) != 1 || o.Failures[0].Symbol != "BAD" {
		t.Fatalf("failures = %v, want exactly BAD", o.Failures)
	}
	if len(f.breadth.recs) != 1 {
		t.Errorf("%d stored records, want 1", len(f.breadth.recs))
	}
}

func TestRunPrefetchSkipsFailedSymbols(t *testing.T) {
	f := newResolverFixture(t, []string{"GOOD", "BAD"}, map[string]bool{"BAD": true})
	ctx := context.Background()

	// Empty breadth store: gap fill degrades to a multi-date backfill,
	// which prefetches history once for the whole range.
	report, err := f.resolver.Run(ctx, ModeGapFill)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.FetchFailures) != 1 || report.FetchFailures[0].Symbol != "BAD" {
		t.Fatalf("run failures = %v, want exactly BAD", report.FetchFailures)
	}
	if len(report.Outcomes) < 2 {
		t.Fatalf("%d outcomes, want a multi-date backfill", len(report.Outcomes))
	}
	for _, o := range report.Outcomes {
		if o.Status != StatusComputed {
			t.Errorf("%s status %s (err %v), want computed", o.Date.Format(domain.DateLayout), o.Status, o.Err)
		}
	}
	// One prefetch call per symbol, then nothing: GOOD is covered and BAD
	// is never re-attempted.
	if n := f.provider.callCount(); n != 2 {
		t.Errorf("%d provider calls, want 2", n)
	}
}

func TestRunCoverageGateSkips(t *testing.T) {
	f := newResolverFixture(t, []string{"A", "B", "C"}, map[string]bool{"A": true, "B": true})
	f.resolver.calculator = NewCalculator(4.5, []int{2}, 2)

	report, err := f.resolver.Run(context.Background(), ModeLatest)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := report.Outcomes[0].Status; got != StatusSkipped {
		t.Fatalf("status %s, want skipped with 1 of 3 symbols covered", got)
	}
	if len(f.breadth.recs) != 0 {
		t.Errorf("%d stored records, want 0 for a skipped date", len(f.breadth.recs))
	}
}

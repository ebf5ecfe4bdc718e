package breadth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mbi/internal/calendar"
	"mbi/internal/config"
	"mbi/internal/domain"
	"mbi/internal/fetch"
	"mbi/internal/store"
)

// Mode selects which trading dates a resolver run targets.
type Mode int

const (
	// ModeBackfill targets every trading day in the configured lookback
	// window, recomputing records that already exist.
	ModeBackfill Mode = iota
	// ModeLatest targets only the most recent completed trading day,
	// recomputing it even when a record already exists.
	ModeLatest
	// ModeGapFill targets the trading days after the newest stored breadth
	// record up to the most recent completed trading day. With an empty
	// breadth store it degrades to a backfill.
	ModeGapFill
)

func (m Mode) String() string {
	switch m {
	case ModeBackfill:
		return "backfill"
	case ModeLatest:
		return "latest"
	case ModeGapFill:
		return "gapfill"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// DateStatus classifies the outcome of one target date.
type DateStatus string

const (
	StatusComputed DateStatus = "computed"
	StatusSkipped  DateStatus = "skipped"
	StatusError    DateStatus = "error"
)

// DateOutcome records what happened to one target date. Failures lists the
// symbols that could not be fetched for the date; the date can still be
// computed when enough of the universe remains.
type DateOutcome struct {
	Date     time.Time
	Status   DateStatus
	Err      error
	Failures []fetch.FetchFailure
}

// Report is the outcome of a resolver run, one entry per target date in
// chronological order. FetchFailures lists symbols that failed during the
// run's initial history prefetch and were left out of every date.
type Report struct {
	Mode          Mode
	Outcomes      []DateOutcome
	FetchFailures []fetch.FetchFailure
}

// Counts returns how many target dates were computed, skipped, and errored.
func (r *Report) Counts() (computed, skipped, failed int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusComputed:
			computed++
		case StatusSkipped:
			skipped++
		case StatusError:
			failed++
		}
	}
	return
}

// Resolver decides which dates need breadth records and drives the
// fetch-consolidate-reduce pipeline for each of them. A failure on one date
// never aborts the run; the remaining dates still process and the report
// carries the per-date outcomes.
type Resolver struct {
	cal          *calendar.Calendar
	universe     []string
	adapter      *fetch.Adapter
	bars         store.BarStore
	breadth      store.BreadthStore
	consolidator *Consolidator
	calculator   *Calculator
	lookbackDays int
	maxWorkers   int
	refreshDays  int
	log          *slog.Logger
}

// NewResolver wires a resolver over the given stores and fetch adapter.
func NewResolver(cal *calendar.Calendar, universe []string, adapter *fetch.Adapter, bars store.BarStore, breadth store.BreadthStore, cfg config.Pipeline, maxWorkers int, log *slog.Logger) *Resolver {
	return &Resolver{
		cal:          cal,
		universe:     universe,
		adapter:      adapter,
		bars:         bars,
		breadth:      breadth,
		consolidator: NewConsolidator(bars, cfg.SMAPeriods, cfg.Window52W),
		calculator:   NewCalculator(cfg.ChangeThreshold, cfg.SMAPeriods, cfg.MinValidSymbols),
		lookbackDays: cfg.LookbackDays,
		maxWorkers:   maxWorkers,
		refreshDays:  7,
		log:          log,
	}
}

// Run resolves the target dates for mode and processes them in ascending
// order. It returns an error only when no target date can be determined;
// per-date failures are reported, not returned.
func (r *Resolver) Run(ctx context.Context, mode Mode) (*Report, error) {
	dates, err := r.targetDates(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("resolving target dates: %w", err)
	}

	report := &Report{Mode: mode, Outcomes: make([]DateOutcome, 0, len(dates))}
	r.log.Info("resolver run starting", "mode", mode.String(), "dates", len(dates))

	// For a multi-date run, fetch every symbol's missing history in one
	// pass up front. The per-date coverage check then finds the series
	// complete, and a symbol that failed here is skipped for the rest of
	// the run instead of burning its retry budget on every date.
	skip := make(map[string]bool)
	if len(dates) > 1 {
		histStart := dates[0].AddDate(0, 0, -r.consolidator.readbackDays())
		failures, err := r.ensureCoverage(ctx, dates[len(dates)-1], histStart, false, nil)
		if err != nil {
			return nil, fmt.Errorf("prefetching history: %w", err)
		}
		report.FetchFailures = failures
		for _, f := range failures {
			skip[f.Symbol] = true
		}
	}

	force := mode == ModeLatest
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome := r.processDate(ctx, date, force, skip)
		report.Outcomes = append(report.Outcomes, outcome)
		r.log.Info("date processed",
			"date", date.Format(domain.DateLayout),
			"status", string(outcome.Status),
			"fetch_failures", len(outcome.Failures))
	}

	computed, skipped, failed := report.Counts()
	r.log.Info("resolver run finished",
		"mode", mode.String(), "computed", computed, "skipped", skipped, "errors", failed)
	return report, nil
}

// RunDate processes one explicit trading day, recomputing its record if it
// already exists. Non-trading dates are rejected.
func (r *Resolver) RunDate(ctx context.Context, date time.Time) (*Report, error) {
	date = domain.Day(date)
	ok, err := r.cal.IsTradingDay(date)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s is not a trading day", date.Format(domain.DateLayout))
	}

	outcome := r.processDate(ctx, date, true, nil)
	r.log.Info("date processed",
		"date", date.Format(domain.DateLayout),
		"status", string(outcome.Status),
		"fetch_failures", len(outcome.Failures))
	return &Report{Mode: ModeLatest, Outcomes: []DateOutcome{outcome}}, nil
}

// latestTarget is the most recent completed trading day: strictly before
// today, so an in-progress session never produces a record.
func (r *Resolver) latestTarget() (time.Time, error) {
	return r.cal.PreviousTradingDay(r.cal.Today())
}

func (r *Resolver) targetDates(ctx context.Context, mode Mode) ([]time.Time, error) {
	latest, err := r.latestTarget()
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeLatest:
		return []time.Time{latest}, nil

	case ModeBackfill:
		start := latest.AddDate(0, 0, -r.lookbackDays)
		return r.cal.TradingDaysBetween(start, latest)

	case ModeGapFill:
		maxDate, ok, err := r.breadth.MaxDate(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.log.Info("breadth store empty, gap fill degrades to backfill")
			return r.targetDates(ctx, ModeBackfill)
		}
		if !maxDate.Before(latest) {
			return nil, nil
		}
		return r.cal.TradingDaysBetween(maxDate.AddDate(0, 0, 1), latest)
	}
	return nil, fmt.Errorf("unknown mode %d", int(mode))
}

// processDate runs the full pipeline for one date. Any error stays inside
// the returned outcome.
func (r *Resolver) processDate(ctx context.Context, date time.Time, force bool, skip map[string]bool) DateOutcome {
	outcome := DateOutcome{Date: date}

	histStart := date.AddDate(0, 0, -r.consolidator.readbackDays())
	failures, err := r.ensureCoverage(ctx, date, histStart, force, skip)
	outcome.Failures = failures
	if err != nil {
		outcome.Status = StatusError
		outcome.Err = err
		return outcome
	}

	cs, err := r.consolidator.Consolidate(ctx, date, r.universe)
	if err != nil {
		outcome.Status = StatusError
		outcome.Err = fmt.Errorf("consolidating %s: %w", date.Format(domain.DateLayout), err)
		return outcome
	}

	rec, ok := r.calculator.Reduce(cs)
	if !ok {
		r.log.Warn("insufficient coverage, date skipped",
			"date", date.Format(domain.DateLayout), "symbols", cs.Size())
		outcome.Status = StatusSkipped
		return outcome
	}

	if err := r.breadth.WriteRecord(ctx, rec); err != nil {
		outcome.Status = StatusError
		outcome.Err = fmt.Errorf("writing record for %s: %w", date.Format(domain.DateLayout), err)
		return outcome
	}

	outcome.Status = StatusComputed
	return outcome
}

// fetchJob is one symbol's missing range.
type fetchJob struct {
	symbol string
	start  time.Time
	end    time.Time
}

// ensureCoverage makes sure every universe symbol's stored series reaches
// the target date, fetching missing ranges with a bounded worker pool.
// Symbols with no history at all are fetched from histStart so the trailing
// indicator window is fully populated. A symbol whose series already
// reaches the date is left alone unless force is set, in which case a short
// trailing window is refetched to absorb late upstream corrections. Symbols
// in skip are not attempted. Fetch failures are collected, not fatal; the
// returned error covers store failures only.
func (r *Resolver) ensureCoverage(ctx context.Context, date, histStart time.Time, force bool, skip map[string]bool) ([]fetch.FetchFailure, error) {
	jobs := make([]fetchJob, 0, len(r.universe))
	for _, symbol := range r.universe {
		if skip[symbol] {
			continue
		}
		latest, ok, err := r.bars.LatestDate(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("reading latest date for %s: %w", symbol, err)
		}
		switch {
		case !ok:
			jobs = append(jobs, fetchJob{symbol: symbol, start: histStart, end: date})
		case latest.Before(date):
			jobs = append(jobs, fetchJob{symbol: symbol, start: latest.AddDate(0, 0, 1), end: date})
		case force:
			jobs = append(jobs, fetchJob{symbol: symbol, start: date.AddDate(0, 0, -r.refreshDays), end: date})
		}
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	workers := r.maxWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan fetchJob)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []fetch.FetchFailure
		storeErr error
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				bars, failure := r.adapter.Fetch(ctx, job.symbol, job.start, job.end)
				if failure != nil {
					mu.Lock()
					failures = append(failures, *failure)
					mu.Unlock()
					continue
				}
				if len(bars) == 0 {
					continue
				}
				if err := r.bars.WriteBars(ctx, bars); err != nil {
					mu.Lock()
					if storeErr == nil {
						storeErr = fmt.Errorf("writing bars for %s: %w", job.symbol, err)
					}
					mu.Unlock()
				}
			}
		}()
	}

	for _, job := range jobs {
		select {
		case jobCh <- job:
		case <-ctx.Done():
			close(jobCh)
			wg.Wait()
			return failures, ctx.Err()
		}
	}
	close(jobCh)
	wg.Wait()

	return failures, storeErr
}

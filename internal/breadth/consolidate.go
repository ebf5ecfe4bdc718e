// Package breadth holds the heart of the pipeline: consolidating stored
// per-symbol history into daily cross-sections, reducing cross-sections to
// breadth records, and resolving which dates need (re)computation.
package breadth

import (
	"context"
	"fmt"
	"time"

	"mbi/internal/domain"
	"mbi/internal/store"
)

// Consolidator builds one date's cross-section from stored bar history:
// per symbol, the trailing SMAs, the 52-week extremum flags, and the prior
// close.
type Consolidator struct {
	bars      store.BarStore
	periods   []int
	window52W int
}

// NewConsolidator creates a Consolidator computing SMAs for the given
// periods and extrema over a trailing window of window52W bars.
func NewConsolidator(bars store.BarStore, periods []int, window52W int) *Consolidator {
	return &Consolidator{bars: bars, periods: periods, window52W: window52W}
}

// readbackDays returns how many calendar days of history to read so the
// trailing window is fully populated. Two calendar days per trading bar
// comfortably covers weekends and holiday clusters.
func (c *Consolidator) readbackDays() int {
	deepest := c.window52W
	for _, p := range c.periods {
		if p > deepest {
			deepest = p
		}
	}
	return deepest * 2
}

// Consolidate builds the cross-section for date over the given universe. A
// symbol with no bar exactly on the date has a data gap and is excluded
// entirely; the resulting effective universe size is the denominator
// downstream, never the nominal universe size. Only bars dated on or before
// the target date are read, so later appends can never influence the
// result.
func (c *Consolidator) Consolidate(ctx context.Context, date time.Time, universe []string) (*domain.CrossSection, error) {
	date = domain.Day(date)
	start := date.AddDate(0, 0, -c.readbackDays())

	cs := &domain.CrossSection{
		Date:    date,
		Symbols: make(map[string]domain.SymbolSnapshot, len(universe)),
	}

	for _, symbol := range universe {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bars, err := c.bars.ReadBars(ctx, symbol, start, date)
		if err != nil {
			return nil, fmt.Errorf("reading history for %s: %w", symbol, err)
		}
		if len(bars) == 0 {
			continue
		}

		last := bars[len(bars)-1]
		if !domain.Day(last.Date).Equal(date) {
			// Data gap on the target date: excluded from this cross-section.
			continue
		}

		snap := domain.SymbolSnapshot{
			Close: last.Close,
			SMA:   make(map[int]float64, len(c.periods)),
		}

		if len(bars) >= 2 {
			snap.PrevClose = bars[len(bars)-2].Close
			snap.HasPrevClose = true
		}

		closes := make([]float64, len(bars))
		for i, b := range bars {
			closes[i] = b.Close
		}

		for _, p := range c.periods {
			if v, ok := sma(closes, p); ok {
				snap.SMA[p] = v
			}
		}

		snap.Is52WHigh, snap.Is52WLow = extremumFlags(closes, c.window52W)
		cs.Symbols[symbol] = snap
	}

	return cs, nil
}

// sma returns the mean of the last period closes. It is undefined (ok
// false) with fewer than period values.
func sma(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}
	var sum float64
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period), true
}

// extremumFlags reports whether the final close is the maximum (resp.
// minimum) of the trailing window bars, the final close included. With
// fewer than window bars the flags are undefined and both false, same
// definedness rule as the SMAs.
func extremumFlags(closes []float64, window int) (isHigh, isLow bool) {
	if len(closes) < window {
		return false, false
	}
	w := closes[len(closes)-window:]
	last := w[len(w)-1]
	max, min := w[0], w[0]
	for _, c := range w[1:] {
		if c > max {
			max = c
		}
		if c < min {
			min = c
		}
	}
	return last >= max, last <= min
}

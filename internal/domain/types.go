// Package domain defines the core data types shared across the breadth
// pipeline: daily bars, cross-sectional snapshots, and breadth records.
package domain

import (
	"fmt"
	"time"
)

// DateLayout is the canonical date format used in file names, store keys,
// and log output.
const DateLayout = "2006-01-02"

// Bar is one day's OHLCV data for one symbol. Bars are immutable once
// stored; the Date carries day precision (UTC midnight).
type Bar struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Validate checks the bar for internal consistency: positive prices, the
// high/low envelope containing open and close, and non-negative volume.
func (b Bar) Validate() error {
	if b.Symbol == "" {
		return fmt.Errorf("bar has empty symbol")
	}
	if b.Date.IsZero() {
		return fmt.Errorf("%s: bar has zero date", b.Symbol)
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("%s %s: non-positive price", b.Symbol, b.Date.Format(DateLayout))
	}
	if b.High < b.Open || b.High < b.Close || b.High < b.Low {
		return fmt.Errorf("%s %s: high %.4f below open/close/low", b.Symbol, b.Date.Format(DateLayout), b.High)
	}
	if b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("%s %s: low %.4f above open/close", b.Symbol, b.Date.Format(DateLayout), b.Low)
	}
	if b.Volume < 0 {
		return fmt.Errorf("%s %s: negative volume %d", b.Symbol, b.Date.Format(DateLayout), b.Volume)
	}
	return nil
}

// Day truncates t to day precision in UTC. All store keys and cross-section
// dates are normalized through this.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SymbolSnapshot holds one symbol's derived indicators for a single date
// within a cross-section. SMA values are present in the map only for the
// periods with enough trailing history to be defined.
type SymbolSnapshot struct {
	Close        float64
	PrevClose    float64
	HasPrevClose bool
	SMA          map[int]float64
	Is52WHigh    bool
	Is52WLow     bool
}

// CrossSection is the set of all symbols' derived indicators for one trading
// date. It is a transient view recomputed from stored bars and is never
// authoritative.
type CrossSection struct {
	Date    time.Time
	Symbols map[string]SymbolSnapshot
}

// Size returns the effective universe size N for the date: the number of
// symbols that had a valid bar on the date.
func (cs *CrossSection) Size() int { return len(cs.Symbols) }

// RatioUndefined is the sentinel emitted for a ratio metric whose
// denominator percentage is zero. With the 100x ratio convention a value of
// 9999 sits far above any attainable ratio, so downstream consumers can
// distinguish "undefined" from a genuine zero (numerator zero, denominator
// nonzero).
const RatioUndefined = 9999.0

// BreadthRecord is the final artifact: the 16 breadth metrics for one
// trading date. Percentages are in [0,100]; the three ratio fields are
// non-negative or RatioUndefined.
type BreadthRecord struct {
	Date time.Time

	High52WPct float64 // % of symbols closing at a 52-week high
	Low52WPct  float64 // % of symbols closing at a 52-week low

	Up45Pct   float64 // % of symbols up at least the daily change threshold
	Down45Pct float64 // % of symbols down at least the daily change threshold

	Above10Pct  float64
	Below10Pct  float64
	Above20Pct  float64
	Below20Pct  float64
	Above50Pct  float64
	Below50Pct  float64
	Above200Pct float64
	Below200Pct float64

	Ratio45    float64 // 100 * Up45Pct / Down45Pct
	Ratio20SMA float64 // 100 * Above20Pct / Below20Pct
	Ratio50SMA float64 // 100 * Above50Pct / Below50Pct
}

// Package quality checks the health of the stored bar series. Upstream data
// is adjusted, so a large one-day close move usually means an unadjusted
// split or bonus slipped through; volume spikes flag suspect rows worth a
// manual look before they feed the breadth series.
package quality

import (
	"context"
	"fmt"
	"math"
	"time"

	"mbi/internal/domain"
	"mbi/internal/store"
)

const (
	// JumpThresholdPct is the one-day close move, in percent, above which a
	// bar is flagged as a suspected unadjusted corporate action.
	JumpThresholdPct = 20.0
	// VolumeRatioThreshold is the multiple of a symbol's average volume
	// above which a day is flagged as a volume anomaly.
	VolumeRatioThreshold = 5.0
)

// Issue flags one suspect observation in a symbol's stored series.
type Issue struct {
	Symbol string
	Date   time.Time
	Reason string
}

func (i Issue) String() string {
	if i.Date.IsZero() {
		return i.Symbol + ": " + i.Reason
	}
	return i.Symbol + " " + i.Date.Format(domain.DateLayout) + ": " + i.Reason
}

// Report summarizes stored-series health across the universe.
type Report struct {
	TotalSymbols    int
	WithData        int
	WithoutData     int
	SuspectedJumps  int
	VolumeAnomalies int
	Issues          []Issue
}

// Check scans each universe symbol's stored bars in the windowDays calendar
// days ending at asOf and reports missing series, suspected unadjusted
// corporate actions, and volume anomalies.
func Check(ctx context.Context, bars store.BarStore, universe []string, asOf time.Time, windowDays int) (*Report, error) {
	rep := &Report{TotalSymbols: len(universe)}
	start := domain.Day(asOf).AddDate(0, 0, -windowDays)

	for _, symbol := range universe {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		series, err := bars.ReadBars(ctx, symbol, start, asOf)
		if err != nil {
			return nil, fmt.Errorf("reading series for %s: %w", symbol, err)
		}
		if len(series) == 0 {
			rep.WithoutData++
			rep.Issues = append(rep.Issues, Issue{Symbol: symbol, Reason: "no stored data"})
			continue
		}
		rep.WithData++

		rep.checkJumps(symbol, series)
		rep.checkVolume(symbol, series)
	}
	return rep, nil
}

func (rep *Report) checkJumps(symbol string, series []domain.Bar) {
	for i := 1; i < len(series); i++ {
		prev := series[i-1].Close
		if prev <= 0 {
			continue
		}
		chg := (series[i].Close - prev) / prev * 100
		if math.Abs(chg) > JumpThresholdPct {
			rep.SuspectedJumps++
			rep.Issues = append(rep.Issues, Issue{
				Symbol: symbol,
				Date:   series[i].Date,
				Reason: fmt.Sprintf("suspected unadjusted split or bonus: %+.2f%% close move", chg),
			})
		}
	}
}

func (rep *Report) checkVolume(symbol string, series []domain.Bar) {
	if len(series) < 2 {
		return
	}
	var total int64
	for _, b := range series {
		total += b.Volume
	}
	for _, b := range series {
		// Compare against the average of the other days so the spike does
		// not inflate its own baseline.
		avg := float64(total-b.Volume) / float64(len(series)-1)
		if avg <= 0 {
			continue
		}
		if ratio := float64(b.Volume) / avg; ratio > VolumeRatioThreshold {
			rep.VolumeAnomalies++
			rep.Issues = append(rep.Issues, Issue{
				Symbol: symbol,
				Date:   b.Date,
				Reason: fmt.Sprintf("volume %.1fx the period average", ratio),
			})
		}
	}
}

package breadth

import (
	"math"

	"mbi/internal/domain"
)

// Calculator reduces a cross-section to one BreadthRecord. Denominators are
// effective, never the nominal universe size: whole-universe percentages use
// the cross-section size N, and each SMA percentage uses N_p, the count of
// symbols with that SMA defined on the date.
type Calculator struct {
	threshold float64
	periods   []int
	minValid  int
}

// NewCalculator creates a Calculator with the daily change threshold (in
// percent), the SMA periods to report on, and the minimum effective
// universe size below which a date yields no record.
func NewCalculator(threshold float64, periods []int, minValid int) *Calculator {
	return &Calculator{threshold: threshold, periods: periods, minValid: minValid}
}

// Reduce computes the breadth record for cs. ok is false when the
// cross-section covers fewer symbols than the configured minimum, in which
// case the record is zero and must not be stored.
func (c *Calculator) Reduce(cs *domain.CrossSection) (domain.BreadthRecord, bool) {
	n := cs.Size()
	if n < c.minValid {
		return domain.BreadthRecord{}, false
	}

	var highs, lows, up, down int
	above := make(map[int]int, len(c.periods))
	below := make(map[int]int, len(c.periods))
	defined := make(map[int]int, len(c.periods))

	for _, snap := range cs.Symbols {
		if snap.Is52WHigh {
			highs++
		}
		if snap.Is52WLow {
			lows++
		}

		// A symbol without a prior close has no daily change: it stays in
		// the denominator N but joins neither threshold count.
		if snap.HasPrevClose && snap.PrevClose > 0 {
			chg := (snap.Close - snap.PrevClose) / snap.PrevClose * 100
			if chg >= c.threshold {
				up++
			}
			if chg <= -c.threshold {
				down++
			}
		}

		for _, p := range c.periods {
			v, ok := snap.SMA[p]
			if !ok {
				continue
			}
			defined[p]++
			if snap.Close >= v {
				above[p]++
			} else {
				below[p]++
			}
		}
	}

	rec := domain.BreadthRecord{
		Date:       cs.Date,
		High52WPct: round2(pct(highs, n)),
		Low52WPct:  round2(pct(lows, n)),
		Up45Pct:    round2(pct(up, n)),
		Down45Pct:  round2(pct(down, n)),
		Ratio45:    round2(ratio(pct(up, n), pct(down, n))),
		Ratio20SMA: round2(ratio(pct(above[20], defined[20]), pct(below[20], defined[20]))),
		Ratio50SMA: round2(ratio(pct(above[50], defined[50]), pct(below[50], defined[50]))),
	}

	for _, p := range c.periods {
		a := round2(pct(above[p], defined[p]))
		b := round2(pct(below[p], defined[p]))
		switch p {
		case 10:
			rec.Above10Pct, rec.Below10Pct = a, b
		case 20:
			rec.Above20Pct, rec.Below20Pct = a, b
		case 50:
			rec.Above50Pct, rec.Below50Pct = a, b
		case 200:
			rec.Above200Pct, rec.Below200Pct = a, b
		}
	}

	return rec, true
}

// pct returns 100*count/total, or 0 when total is zero.
func pct(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}

// ratio returns 100*numPct/denomPct. A zero denominator yields the
// RatioUndefined sentinel, a zero numerator over a zero denominator
// included.
func ratio(numPct, denomPct float64) float64 {
	if denomPct == 0 {
		return domain.RatioUndefined
	}
	return numPct / denomPct * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package fetch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"mbi/internal/domain"
	"mbi/internal/util"
)

// Compile-time interface check.
var _ Provider = (*YahooProvider)(nil)

// nseSuffix is appended to plain NSE symbols for Yahoo Finance lookups.
const nseSuffix = ".NS"

// YahooProvider fetches daily NSE bars from the Yahoo Finance chart API.
// Prices are scaled to the upstream's adjusted close, so splits and bonuses
// are already reflected (the pipeline performs no secondary adjustment).
type YahooProvider struct {
	loc *time.Location // IST; Yahoo timestamps are session-local epochs
}

// NewYahooProvider creates a YahooProvider.
func NewYahooProvider() (*YahooProvider, error) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return nil, fmt.Errorf("loading IST location: %w", err)
	}
	return &YahooProvider{loc: loc}, nil
}

// Name returns the provider identifier.
func (p *YahooProvider) Name() string { return "yahoo" }

// FetchBars fetches daily bars for symbol within [start, end]. The symbol
// is suffixed with .NS when no exchange suffix is present. A symbol Yahoo
// does not know is a permanent failure; an empty chart for a known symbol
// is a data gap and yields an empty result.
func (p *YahooProvider) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ticker := symbol
	if !strings.Contains(ticker, ".") {
		ticker += nseSuffix
	}

	// Widen the end by a day: Yahoo treats the range as half-open.
	qEnd := end.AddDate(0, 0, 1)

	params := &chart.Params{
		Symbol:   ticker,
		Interval: datetime.OneDay,
		Start:    datetime.New(&start),
		End:      datetime.New(&qEnd),
	}

	iter := chart.Get(params)

	var bars []domain.Bar
	for iter.Next() {
		cb := iter.Bar()

		open, _ := cb.Open.Float64()
		high, _ := cb.High.Float64()
		low, _ := cb.Low.Float64()
		closePx, _ := cb.Close.Float64()
		adjClose, _ := cb.AdjClose.Float64()

		// Null bars appear for holidays and halts; skip them.
		if open == 0 && high == 0 && low == 0 && closePx == 0 {
			continue
		}

		// Scale the whole bar to the adjusted close so history stays
		// consistent across splits and bonuses.
		if adjClose > 0 && closePx > 0 && adjClose != closePx {
			factor := adjClose / closePx
			open *= factor
			high *= factor
			low *= factor
			closePx = adjClose
		}

		day := domain.Day(time.Unix(int64(cb.Timestamp), 0).In(p.loc))
		if day.Before(domain.Day(start)) || day.After(domain.Day(end)) {
			continue
		}

		bars = append(bars, domain.Bar{
			Symbol: strings.TrimSuffix(strings.ToUpper(ticker), nseSuffix),
			Date:   day,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePx,
			Volume: int64(cb.Volume),
		})
	}

	if err := iter.Err(); err != nil {
		return nil, classifyYahooErr(ticker, err)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// classifyYahooErr maps Yahoo chart errors onto the retry taxonomy: unknown
// or delisted symbols are permanent, everything else (network, throttling,
// upstream 5xx) stays transient.
func classifyYahooErr(ticker string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found"),
		strings.Contains(msg, "delisted"),
		strings.Contains(msg, "no data found"),
		strings.Contains(msg, "invalid symbol"):
		return util.Permanent(fmt.Errorf("yahoo: %s: %w", ticker, err))
	default:
		return fmt.Errorf("yahoo: %s: %w", ticker, err)
	}
}

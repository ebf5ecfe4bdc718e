package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"mbi/internal/domain"
)

// csvHeader is the historical market_breadth.csv column layout consumed by
// the dashboard.
var csvHeader = []string{
	"Date",
	"52WH(%)", "52WL(%)",
	"4.5+(%)", "4.5-(%)",
	"10+(%)", "10-(%)",
	"20+(%)", "20-(%)",
	"50+(%)", "50-(%)",
	"200+(%)", "200-(%)",
	"4.5r", "20sma", "50sma",
}

// ExportCSV writes records to w in the market_breadth.csv layout: the 16
// named columns, one row per date, two decimal places.
func ExportCSV(w io.Writer, records []domain.BreadthRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.Date.Format(domain.DateLayout),
			pct(rec.High52WPct), pct(rec.Low52WPct),
			pct(rec.Up45Pct), pct(rec.Down45Pct),
			pct(rec.Above10Pct), pct(rec.Below10Pct),
			pct(rec.Above20Pct), pct(rec.Below20Pct),
			pct(rec.Above50Pct), pct(rec.Below50Pct),
			pct(rec.Above200Pct), pct(rec.Below200Pct),
			pct(rec.Ratio45), pct(rec.Ratio20SMA), pct(rec.Ratio50SMA),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row for %s: %w", rec.Date.Format(domain.DateLayout), err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func pct(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

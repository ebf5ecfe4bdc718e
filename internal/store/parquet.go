package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"mbi/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore with one Parquet file per symbol at
// <DataDir>/stocks/<SYMBOL>.parquet, rows sorted ascending by date. Writes
// merge with the existing file and deduplicate by date, so re-fetching a
// date overwrites in place.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// barRecord is the Parquet schema for daily bar rows.
type barRecord struct {
	Symbol string  `parquet:"symbol"`
	Date   int64   `parquet:"date,timestamp(millisecond)"` // Unix ms, UTC midnight
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume int64   `parquet:"volume"`
}

// WriteBars merges the given bars into their symbols' Parquet files.
// Existing rows for the same date are replaced by the incoming ones.
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	groups := make(map[string][]barRecord)
	for _, b := range bars {
		sym := strings.ToUpper(b.Symbol)
		groups[sym] = append(groups[sym], barRecord{
			Symbol: sym,
			Date:   domain.Day(b.Date).UnixMilli(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}

	for sym, records := range groups {
		path := s.seriesPath(sym)

		// Missing file is fine: first write for the symbol. Any other read
		// error must stop the write, or the merge would silently replace
		// the stored history with just the incoming batch.
		existing, err := readParquetFile[barRecord](path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reading existing series for %s: %w", sym, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s: %w", sym, err)
		}
	}
	return nil
}

// ReadBars reads the symbol's bars within [start, end], ascending by date.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	records, err := readParquetFile[barRecord](s.seriesPath(symbol))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading series for %s: %w", symbol, err)
	}

	startDay := domain.Day(start)
	endDay := domain.Day(end)

	var bars []domain.Bar
	for _, r := range records {
		d := time.UnixMilli(r.Date).UTC()
		if d.Before(startDay) || d.After(endDay) {
			continue
		}
		bars = append(bars, domain.Bar{
			Symbol: r.Symbol,
			Date:   d,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return bars, nil
}

// LatestDate returns the most recent stored date for the symbol.
func (s *ParquetStore) LatestDate(_ context.Context, symbol string) (time.Time, bool, error) {
	records, err := readParquetFile[barRecord](s.seriesPath(symbol))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("reading series for %s: %w", symbol, err)
	}
	if len(records) == 0 {
		return time.Time{}, false, nil
	}
	// Files are kept sorted ascending on write.
	return time.UnixMilli(records[len(records)-1].Date).UTC(), true, nil
}

// ListSymbols lists all symbols with a series file, sorted.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "stocks"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		symbols = append(symbols, strings.TrimSuffix(name, ".parquet"))
	}
	sort.Strings(symbols)
	return symbols, nil
}

// seriesPath returns the filesystem path for a symbol's series file.
// Layout: <dataDir>/stocks/<SYMBOL>.parquet
func (s *ParquetStore) seriesPath(symbol string) string {
	return filepath.Join(s.DataDir, "stocks", strings.ToUpper(symbol)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	// Stat first so a missing file surfaces as a plain not-exist error that
	// callers can test with os.IsNotExist.
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by date, preferring incoming
// records over existing ones. Results are sorted ascending by date.
func mergeBarRecords(existing, incoming []barRecord) []barRecord {
	seen := make(map[int64]barRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Date] = r
	}
	for _, r := range incoming {
		seen[r.Date] = r
	}

	merged := make([]barRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})
	return merged
}

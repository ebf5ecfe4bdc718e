// Package store defines storage interfaces for the two persistent series of
// the pipeline: per-symbol OHLCV history and the derived breadth table.
package store

import (
	"context"
	"time"

	"mbi/internal/domain"
)

// BarStore persists and retrieves per-symbol daily OHLCV history. The
// history is append-only: a write for an already-present (symbol, date) is
// an idempotent in-place overwrite, never a duplicate.
type BarStore interface {
	// WriteBars persists a batch of bars, merging with existing history.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns the symbol's bars within [start, end], ascending by
	// date. A symbol with no stored history yields an empty slice.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// LatestDate returns the most recent stored date for the symbol. The
	// second result is false when the symbol has no history.
	LatestDate(ctx context.Context, symbol string) (time.Time, bool, error)

	// ListSymbols returns all symbols with stored history, sorted.
	ListSymbols(ctx context.Context) ([]string, error)
}

// BreadthStore persists the computed breadth series, one record per trading
// date. Writes are upserts keyed by date so recomputation is idempotent.
type BreadthStore interface {
	// WriteRecord inserts or replaces the record for its date.
	WriteRecord(ctx context.Context, rec domain.BreadthRecord) error

	// ReadRange returns records with dates in [start, end], ascending.
	ReadRange(ctx context.Context, start, end time.Time) ([]domain.BreadthRecord, error)

	// MaxDate returns the latest date present in the series; false when the
	// series is empty. This is the pipeline's update cursor.
	MaxDate(ctx context.Context) (time.Time, bool, error)
}

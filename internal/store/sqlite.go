package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mbi/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ BreadthStore = (*SQLiteStore)(nil)

// SQLiteStore implements BreadthStore backed by a SQLite database holding
// the breadth_daily table: one row per trading date, 16 metric columns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, enables
// WAL mode, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// WAL so dashboards can read while the pipeline writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `CREATE TABLE IF NOT EXISTS breadth_daily (
		date           TEXT PRIMARY KEY,
		high_52w_pct   REAL NOT NULL,
		low_52w_pct    REAL NOT NULL,
		up_4_5_pct     REAL NOT NULL,
		down_4_5_pct   REAL NOT NULL,
		above_10_pct   REAL NOT NULL,
		below_10_pct   REAL NOT NULL,
		above_20_pct   REAL NOT NULL,
		below_20_pct   REAL NOT NULL,
		above_50_pct   REAL NOT NULL,
		below_50_pct   REAL NOT NULL,
		above_200_pct  REAL NOT NULL,
		below_200_pct  REAL NOT NULL,
		ratio_4_5      REAL NOT NULL,
		ratio_20sma    REAL NOT NULL,
		ratio_50sma    REAL NOT NULL
	)`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WriteRecord inserts or replaces the record for its date.
func (s *SQLiteStore) WriteRecord(ctx context.Context, rec domain.BreadthRecord) error {
	const stmt = `INSERT OR REPLACE INTO breadth_daily (
		date, high_52w_pct, low_52w_pct, up_4_5_pct, down_4_5_pct,
		above_10_pct, below_10_pct, above_20_pct, below_20_pct,
		above_50_pct, below_50_pct, above_200_pct, below_200_pct,
		ratio_4_5, ratio_20sma, ratio_50sma
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt,
		domain.Day(rec.Date).Format(domain.DateLayout),
		rec.High52WPct, rec.Low52WPct,
		rec.Up45Pct, rec.Down45Pct,
		rec.Above10Pct, rec.Below10Pct,
		rec.Above20Pct, rec.Below20Pct,
		rec.Above50Pct, rec.Below50Pct,
		rec.Above200Pct, rec.Below200Pct,
		rec.Ratio45, rec.Ratio20SMA, rec.Ratio50SMA,
	)
	if err != nil {
		return fmt.Errorf("writing breadth record for %s: %w", rec.Date.Format(domain.DateLayout), err)
	}
	return nil
}

// ReadRange returns records with dates in [start, end], ascending.
func (s *SQLiteStore) ReadRange(ctx context.Context, start, end time.Time) ([]domain.BreadthRecord, error) {
	const query = `SELECT
		date, high_52w_pct, low_52w_pct, up_4_5_pct, down_4_5_pct,
		above_10_pct, below_10_pct, above_20_pct, below_20_pct,
		above_50_pct, below_50_pct, above_200_pct, below_200_pct,
		ratio_4_5, ratio_20sma, ratio_50sma
	FROM breadth_daily WHERE date >= ? AND date <= ? ORDER BY date ASC`

	rows, err := s.db.QueryContext(ctx, query,
		domain.Day(start).Format(domain.DateLayout),
		domain.Day(end).Format(domain.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("querying breadth range: %w", err)
	}
	defer rows.Close()

	var records []domain.BreadthRecord
	for rows.Next() {
		var (
			dateStr string
			rec     domain.BreadthRecord
		)
		if err := rows.Scan(
			&dateStr, &rec.High52WPct, &rec.Low52WPct,
			&rec.Up45Pct, &rec.Down45Pct,
			&rec.Above10Pct, &rec.Below10Pct,
			&rec.Above20Pct, &rec.Below20Pct,
			&rec.Above50Pct, &rec.Below50Pct,
			&rec.Above200Pct, &rec.Below200Pct,
			&rec.Ratio45, &rec.Ratio20SMA, &rec.Ratio50SMA,
		); err != nil {
			return nil, fmt.Errorf("scanning breadth row: %w", err)
		}
		rec.Date, err = time.Parse(domain.DateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parsing stored date %q: %w", dateStr, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MaxDate returns the latest date present in the breadth series.
func (s *SQLiteStore) MaxDate(ctx context.Context) (time.Time, bool, error) {
	var dateStr sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(date) FROM breadth_daily`).Scan(&dateStr)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying max date: %w", err)
	}
	if !dateStr.Valid {
		return time.Time{}, false, nil
	}
	d, err := time.Parse(domain.DateLayout, dateStr.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing max date %q: %w", dateStr.String, err)
	}
	return d, true, nil
}

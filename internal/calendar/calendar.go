// Package calendar answers trading-day questions for the NSE: weekends and
// exchange holidays are closed, everything else is open. Holiday sets are
// maintained per year in JSON metadata files and treated as read-only
// configuration.
package calendar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mbi/internal/domain"
)

// Error reports a date whose year has no resolvable holiday set. It is
// never swallowed: defaulting an unknown year to "trading day" would let
// holiday rows corrupt the breadth series.
type Error struct {
	Year int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("calendar: no holiday data for %d: %v", e.Year, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// holidayFile is the on-disk layout of nse_holidays_<year>.json.
type holidayFile struct {
	Year     int      `json:"year"`
	Holidays []string `json:"holidays"`
}

// Calendar resolves NSE trading days from per-year holiday files stored in
// a metadata directory. Loaded years are cached. Safe for concurrent use.
type Calendar struct {
	metaDir string
	loc     *time.Location

	mu    sync.Mutex
	years map[int]map[string]struct{} // year -> set of YYYY-MM-DD holiday keys
}

// New creates a Calendar reading holiday files from metaDir. The IST
// location is loaded once here; "today" for the exchange is always the IST
// calendar day.
func New(metaDir string) (*Calendar, error) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return nil, fmt.Errorf("loading IST location: %w", err)
	}
	return &Calendar{
		metaDir: metaDir,
		loc:     loc,
		years:   make(map[int]map[string]struct{}),
	}, nil
}

// Today returns the current IST calendar day, normalized to day precision.
func (c *Calendar) Today() time.Time {
	return domain.Day(time.Now().In(c.loc))
}

// IsTradingDay reports whether date is an NSE trading day. It returns a
// *Error when the holiday set for the date's year cannot be resolved.
func (c *Calendar) IsTradingDay(date time.Time) (bool, error) {
	date = domain.Day(date)
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false, nil
	}

	holidays, err := c.holidaysFor(date.Year())
	if err != nil {
		return false, err
	}
	_, holiday := holidays[date.Format(domain.DateLayout)]
	return !holiday, nil
}

// PreviousTradingDay returns the latest trading day strictly before date.
func (c *Calendar) PreviousTradingDay(date time.Time) (time.Time, error) {
	day := domain.Day(date)
	// A full exchange closure never spans more than a couple of weeks.
	for i := 0; i < 30; i++ {
		day = day.AddDate(0, 0, -1)
		ok, err := c.IsTradingDay(day)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			return day, nil
		}
	}
	return time.Time{}, fmt.Errorf("calendar: no trading day in the 30 days before %s", date.Format(domain.DateLayout))
}

// TradingDaysBetween returns all trading days in [start, end], ascending.
func (c *Calendar) TradingDaysBetween(start, end time.Time) ([]time.Time, error) {
	var days []time.Time
	for d := domain.Day(start); !d.After(domain.Day(end)); d = d.AddDate(0, 0, 1) {
		ok, err := c.IsTradingDay(d)
		if err != nil {
			return nil, err
		}
		if ok {
			days = append(days, d)
		}
	}
	return days, nil
}

// holidaysFor loads (and caches) the holiday set for a year.
func (c *Calendar) holidaysFor(year int) (map[string]struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if set, ok := c.years[year]; ok {
		return set, nil
	}

	path := filepath.Join(c.metaDir, fmt.Sprintf("nse_holidays_%d.json", year))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Year: year, Err: err}
	}

	var hf holidayFile
	if err := json.Unmarshal(data, &hf); err != nil {
		return nil, &Error{Year: year, Err: err}
	}
	if hf.Year != year {
		return nil, &Error{Year: year, Err: fmt.Errorf("file %s declares year %d", path, hf.Year)}
	}

	set := make(map[string]struct{}, len(hf.Holidays))
	for _, h := range hf.Holidays {
		if _, err := time.Parse(domain.DateLayout, h); err != nil {
			return nil, &Error{Year: year, Err: fmt.Errorf("bad holiday date %q: %w", h, err)}
		}
		set[h] = struct{}{}
	}

	c.years[year] = set
	return set, nil
}

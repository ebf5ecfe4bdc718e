// Package universe loads the fixed index constituent list. Membership is an
// external input refreshed out of band; this package only reads it.
package universe

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Load reads the index constituent CSV at path and returns the symbol
// universe, sorted and deduplicated. The file follows the NSE constituent
// list layout: a header row containing a "Symbol" column, one constituent
// per row. Rows naming the index itself are skipped.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening universe file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // NSE exports vary in trailing columns

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading universe header: %w", err)
	}

	symbolCol := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "Symbol") {
			symbolCol = i
			break
		}
	}
	if symbolCol < 0 {
		return nil, fmt.Errorf("universe file %s has no Symbol column", path)
	}

	seen := make(map[string]struct{})
	var symbols []string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading universe file %s: %w", path, err)
		}
		if symbolCol >= len(row) {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(row[symbolCol]))
		if sym == "" || strings.HasPrefix(sym, "NIFTY") {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}

	if len(symbols) == 0 {
		return nil, fmt.Errorf("universe file %s contains no symbols", path)
	}

	sort.Strings(symbols)
	return symbols, nil
}

package universe

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "constituents.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing csv: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeCSV(t, `Company Name,Industry,Symbol,Series,ISIN Code
Bharat Electronics Limited,Aerospace & Defense,BEL,EQ,INE263A01024
Suzlon Energy Limited,Power,SUZLON,EQ,INE040H01021
Apollo Tyres Limited,Auto Components,APOLLOTYRE,EQ,INE438A01022
NIFTY MIDSMALLCAP 400,Index,NIFTY MIDSMALLCAP 400,,
Suzlon Energy Limited,Power,SUZLON,EQ,INE040H01021
`)
	symbols, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"APOLLOTYRE", "BEL", "SUZLON"}
	if len(symbols) != len(want) {
		t.Fatalf("got %d symbols %v, want %d", len(symbols), symbols, len(want))
	}
	for i, s := range symbols {
		if s != want[i] {
			t.Errorf("symbols[%d] = %q, want %q", i, s, want[i])
		}
	}
}

func TestLoadNoSymbolColumn(t *testing.T) {
	path := writeCSV(t, "Name,Sector\nFoo,Bar\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load should fail without a Symbol column")
	}
}

func TestLoadEmpty(t *testing.T) {
	path := writeCSV(t, "Company Name,Industry,Symbol\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load should fail for a constituent file with no rows")
	}
}

func TestLoadMalformedRow(t *testing.T) {
	// A bare quote mid-file is a CSV parse error; it must surface instead
	// of silently truncating the universe at the bad row.
	path := writeCSV(t, "Company Name,Symbol\nGood Co,GOOD\nBad \"Co,BAD\nLater Co,LATER\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load should fail on a malformed row")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatal("Load should fail for a missing file")
	}
}

package domain

import (
	"testing"
	"time"
)

func validBar() Bar {
	return Bar{
		Symbol: "RELIANCE",
		Date:   time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC),
		Open:   2900.0,
		High:   2955.5,
		Low:    2890.0,
		Close:  2948.2,
		Volume: 5_400_000,
	}
}

func TestBarValidate(t *testing.T) {
	if err := validBar().Validate(); err != nil {
		t.Fatalf("valid bar rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Bar)
	}{
		{"empty symbol", func(b *Bar) { b.Symbol = "" }},
		{"zero date", func(b *Bar) { b.Date = time.Time{} }},
		{"zero close", func(b *Bar) { b.Close = 0 }},
		{"negative open", func(b *Bar) { b.Open = -1 }},
		{"high below low", func(b *Bar) { b.High = b.Low - 1 }},
		{"high below close", func(b *Bar) { b.High = b.Close - 1 }},
		{"low above open", func(b *Bar) { b.Low = b.Open + 1; b.High = b.Open + 2 }},
		{"negative volume", func(b *Bar) { b.Volume = -5 }},
	}
	for _, tc := range cases {
		b := validBar()
		tc.mutate(&b)
		if err := b.Validate(); err == nil {
			t.Errorf("%s: Validate() accepted invalid bar %+v", tc.name, b)
		}
	}
}

func TestDayNormalizes(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("loading IST: %v", err)
	}
	// 15:30 IST on the 14th must normalize to the 14th, not shift a day.
	d := Day(time.Date(2024, 6, 14, 15, 30, 0, 0, ist))
	want := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	if !d.Equal(want) {
		t.Errorf("Day() = %v, want %v", d, want)
	}
}

func TestCrossSectionSize(t *testing.T) {
	cs := CrossSection{
		Date: time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC),
		Symbols: map[string]SymbolSnapshot{
			"RELIANCE": {Close: 2948.2},
			"TCS":      {Close: 3890.0},
		},
	}
	if cs.Size() != 2 {
		t.Errorf("Size() = %d, want 2", cs.Size())
	}
}

package fetch

import (
	"errors"
	"testing"

	"mbi/internal/util"
)

func TestClassifyYahooErr(t *testing.T) {
	cases := []struct {
		msg       string
		permanent bool
	}{
		{"No data found, symbol may be delisted", true},
		{"Not Found", true},
		{"invalid symbol passed to chart", true},
		{"dial tcp: connection refused", false},
		{"429 Too Many Requests", false},
		{"unexpected EOF", false},
	}
	for _, tc := range cases {
		err := classifyYahooErr("BEL.NS", errors.New(tc.msg))
		if got := util.IsPermanent(err); got != tc.permanent {
			t.Errorf("classifyYahooErr(%q): permanent = %v, want %v", tc.msg, got, tc.permanent)
		}
	}
}

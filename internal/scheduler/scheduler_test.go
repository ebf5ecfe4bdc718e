package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestNewRejectsBadSpec(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(context.Background(), nil, "not a cron spec", log); err == nil {
		t.Fatal("New accepted an unparseable cron spec")
	}
}

func TestNewAcceptsStandardSpec(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(context.Background(), nil, "0 18 * * *", log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	s.Stop()
}

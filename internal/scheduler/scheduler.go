// Package scheduler runs the daily breadth update on a cron schedule in
// exchange time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"mbi/internal/breadth"
	"mbi/internal/domain"
)

// Scheduler triggers a gap-fill resolver run at the configured cron spec.
// The spec is evaluated in IST so the job fires after the NSE close
// regardless of host timezone. Gap-fill rather than latest-day keeps a
// host that slept through a few evenings self-healing.
type Scheduler struct {
	cron     *cron.Cron
	resolver *breadth.Resolver
	log      *slog.Logger
}

// New creates a Scheduler around the resolver. ctx bounds every triggered
// run.
func New(ctx context.Context, resolver *breadth.Resolver, spec string, log *slog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return nil, fmt.Errorf("loading IST location: %w", err)
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		resolver: resolver,
		log:      log,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.runOnce(ctx) }); err != nil {
		return nil, fmt.Errorf("registering daily update %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.log.Info("scheduled update starting")
	report, err := s.resolver.Run(ctx, breadth.ModeGapFill)
	if err != nil {
		s.log.Error("scheduled update failed", "error", err)
		return
	}
	computed, skipped, failed := report.Counts()
	s.log.Info("scheduled update finished",
		"computed", computed, "skipped", skipped, "errors", failed)
	for _, o := range report.Outcomes {
		if o.Status == breadth.StatusError {
			s.log.Error("date failed",
				"date", o.Date.Format(domain.DateLayout), "error", o.Err)
		}
	}
}

// Start begins firing scheduled runs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the scheduler, waiting for an in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

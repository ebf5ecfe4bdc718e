package fetch

import (
	"context"
	"log/slog"
	"time"

	"mbi/internal/config"
	"mbi/internal/domain"
	"mbi/internal/util"
)

// Adapter wraps a Provider with the operational policy the pipeline needs:
// a shared rate limiter, a per-attempt timeout, and a bounded retry loop
// with capped exponential backoff for transient failures.
type Adapter struct {
	provider       Provider
	limiter        *util.RateLimiter
	maxAttempts    int
	baseDelay      time.Duration
	maxDelay       time.Duration
	attemptTimeout time.Duration
	log            *slog.Logger
}

// NewAdapter creates an Adapter around provider using the fetch
// configuration. The limiter is shared with any other adapters or workers
// hitting the same upstream.
func NewAdapter(provider Provider, limiter *util.RateLimiter, cfg config.Fetch, log *slog.Logger) *Adapter {
	return &Adapter{
		provider:       provider,
		limiter:        limiter,
		maxAttempts:    cfg.MaxAttempts,
		baseDelay:      cfg.BaseDelay(),
		maxDelay:       cfg.MaxDelay(),
		attemptTimeout: cfg.AttemptTimeout(),
		log:            log.With("provider", provider.Name()),
	}
}

// Fetch retrieves the symbol's bars for [start, end]. On success the bars
// are validated (invalid rows are dropped with a warning) and returned; an
// empty result is a data gap and not a failure. When the retry budget is
// exhausted, or a permanent error occurs, Fetch returns a FetchFailure and
// nil bars.
func (a *Adapter) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, *FetchFailure) {
	var bars []domain.Bar

	err := util.Retry(ctx, a.maxAttempts, a.baseDelay, a.maxDelay, func() error {
		if err := a.limiter.Wait(ctx); err != nil {
			return util.Permanent(err) // cancelled, don't burn attempts
		}
		fetched, err := a.attempt(ctx, symbol, start, end)
		if err != nil {
			a.log.Debug("fetch attempt failed", "symbol", symbol, "err", err)
			return err
		}
		bars = fetched
		return nil
	})
	if err != nil {
		return nil, &FetchFailure{Symbol: symbol, Reason: err.Error()}
	}

	return a.validate(symbol, bars), nil
}

// attempt runs a single provider call bounded by the per-attempt timeout.
// The provider call runs in its own goroutine because not every upstream
// client honors context deadlines internally.
func (a *Adapter) attempt(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	actx := ctx
	if a.attemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, a.attemptTimeout)
		defer cancel()
	}

	type result struct {
		bars []domain.Bar
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		bars, err := a.provider.FetchBars(actx, symbol, start, end)
		ch <- result{bars: bars, err: err}
	}()

	select {
	case <-actx.Done():
		return nil, actx.Err()
	case r := <-ch:
		return r.bars, r.err
	}
}

// validate drops bars that fail domain validation, logging each one.
func (a *Adapter) validate(symbol string, bars []domain.Bar) []domain.Bar {
	valid := bars[:0]
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			a.log.Warn("dropping invalid bar", "symbol", symbol, "err", err)
			continue
		}
		valid = append(valid, b)
	}
	return valid
}

// Package fetch is the boundary to the upstream price-data provider. A
// Provider performs the raw fetch; the Adapter adds rate limiting, bounded
// retry with exponential backoff, per-attempt timeouts, and bar validation.
//
// Failure taxonomy: a provider error marked with util.Permanent (bad symbol,
// malformed payload) is surfaced immediately; anything else is treated as
// transient (network, rate limit) and retried. After retries are exhausted
// the adapter returns a FetchFailure value so a single symbol's failure is
// never fatal to a batch. An empty result for a valid trading day is a data
// gap, not an error.
package fetch

import (
	"context"
	"time"

	"mbi/internal/domain"
)

// Provider fetches raw daily bars for one symbol. Implementations are pure
// fetchers: no retries, no persistence. The provider is expected to return
// upstream-adjusted prices (splits and bonuses already applied); no
// secondary adjustment happens downstream.
type Provider interface {
	// Name returns the provider identifier for logging.
	Name() string

	// FetchBars returns the symbol's daily bars within [start, end],
	// ascending by date. An empty result is a valid outcome. Errors that
	// should not be retried must be wrapped with util.Permanent.
	FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// FetchFailure describes a symbol whose fetch could not be completed after
// the adapter's retry budget. It is a value, not an error: callers record
// it and move on with the rest of the universe.
type FetchFailure struct {
	Symbol string
	Reason string
}

func (f FetchFailure) String() string {
	return f.Symbol + ": " + f.Reason
}

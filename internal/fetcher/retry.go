package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RetryOptions tune the fixed-backoff retry decorator.
type RetryOptions struct {
	Attempts int
	Delay    time.Duration
}

// Retrying wraps a PriceFetcher with fixed-backoff retries. Configuration
// failures are not retried; they cannot heal between attempts.
type Retrying struct {
	inner  PriceFetcher
	opts   RetryOptions
	logger zerolog.Logger
}

// NewRetrying decorates a fetcher with retry behaviour.
func NewRetrying(inner PriceFetcher, opts RetryOptions, logger zerolog.Logger) *Retrying {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	return &Retrying{
		inner:  inner,
		opts:   opts,
		logger: logger.With().Str("component", "retry_fetcher").Logger(),
	}
}

// FetchPrice delegates to the wrapped fetcher, retrying transient failures.
func (r *Retrying) FetchPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	var lastErr error
	for attempt := 1; attempt <= r.opts.Attempts; attempt++ {
		price, err := r.inner.FetchPrice(ctx, asset)
		if err == nil {
			return price, nil
		}
		lastErr = err

		var fe *FetchError
		if errors.As(err, &fe) && fe.Kind == KindConfig {
			return decimal.Decimal{}, err
		}
		if attempt == r.opts.Attempts {
			break
		}

		r.logger.Warn().Err(err).Str("asset", asset).Int("attempt", attempt).Msg("fetch failed, retrying")

		timer := time.NewTimer(r.opts.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return decimal.Decimal{}, ctx.Err()
		case <-timer.C:
		}
	}
	return decimal.Decimal{}, lastErr
}

var _ PriceFetcher = (*Retrying)(nil)

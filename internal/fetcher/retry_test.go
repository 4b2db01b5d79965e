package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type scriptedFetcher struct {
	calls int
	errs  []error
	price decimal.Decimal
}

func (s *scriptedFetcher) FetchPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	s.calls++
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return decimal.Decimal{}, s.errs[s.calls-1]
	}
	return s.price, nil
}

func TestRetryingEventualSuccess(t *testing.T) {
	transient := &FetchError{Asset: "WAL", Kind: KindTransport, Err: errors.New("boom")}
	inner := &scriptedFetcher{
		errs:  []error{transient, transient, nil},
		price: decimal.NewFromInt(2),
	}

	r := NewRetrying(inner, RetryOptions{Attempts: 3, Delay: time.Millisecond}, noopLogger())
	price, err := r.FetchPrice(context.Background(), "WAL")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inner.calls)
	}
	if price.Cmp(decimal.NewFromInt(2)) != 0 {
		t.Fatalf("unexpected price %s", price)
	}
}

func TestRetryingExhausted(t *testing.T) {
	transient := &FetchError{Asset: "WAL", Kind: KindTransport, Err: errors.New("boom")}
	inner := &scriptedFetcher{errs: []error{transient, transient, transient}}

	r := NewRetrying(inner, RetryOptions{Attempts: 3, Delay: time.Millisecond}, noopLogger())
	_, err := r.FetchPrice(context.Background(), "WAL")
	assertKind(t, err, KindTransport)
	if inner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestRetryingSkipsConfigErrors(t *testing.T) {
	cfgErr := &FetchError{Asset: "WAL", Kind: KindConfig, Err: errors.New("no endpoint")}
	inner := &scriptedFetcher{errs: []error{cfgErr, cfgErr, cfgErr}}

	r := NewRetrying(inner, RetryOptions{Attempts: 3, Delay: time.Millisecond}, noopLogger())
	_, err := r.FetchPrice(context.Background(), "WAL")
	assertKind(t, err, KindConfig)
	if inner.calls != 1 {
		t.Fatalf("config errors must not be retried; got %d attempts", inner.calls)
	}
}

package fetcher

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind classifies why a price fetch failed.
type Kind string

const (
	// KindTransport covers network errors and non-2xx responses.
	KindTransport Kind = "transport"
	// KindParse covers schema mismatches and unparseable payloads.
	KindParse Kind = "parse"
	// KindUpstream covers explicit error codes reported by the exchange.
	KindUpstream Kind = "upstream"
	// KindConfig covers missing local configuration; never retried.
	KindConfig Kind = "config"
)

// FetchError is the typed failure returned by price fetchers.
type FetchError struct {
	Asset string
	Kind  Kind
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s price: %s: %v", e.Asset, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PriceFetcher retrieves the latest quoted price for a named asset.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, asset string) (decimal.Decimal, error)
}

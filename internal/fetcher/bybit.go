package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BybitOptions parameterise the spot ticker fetcher.
type BybitOptions struct {
	// Endpoints maps an asset name to its full ticker URL.
	Endpoints map[string]string
	Timeout   time.Duration
	UserAgent string
}

// Bybit fetches last prices from the Bybit v5 spot ticker API.
type Bybit struct {
	opts   BybitOptions
	logger zerolog.Logger
	client *http.Client
}

// NewBybit constructs a ticker fetcher.
func NewBybit(opts BybitOptions, logger zerolog.Logger) *Bybit {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Bybit{
		opts:   opts,
		logger: logger.With().Str("component", "bybit_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchPrice retrieves the latest spot price for the named asset.
func (b *Bybit) FetchPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	endpoint := b.opts.Endpoints[asset]
	if endpoint == "" {
		return decimal.Decimal{}, &FetchError{Asset: asset, Kind: KindConfig, Err: errors.New("no ticker endpoint configured")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, &FetchError{Asset: asset, Kind: KindConfig, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	// Force a fresh quote per call; any cached ticker defeats the monitor.
	req.Header.Set("Cache-Control", "no-store")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, &FetchError{Asset: asset, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, &FetchError{Asset: asset, Kind: KindTransport, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Decimal{}, &FetchError{Asset: asset, Kind: KindTransport, Err: httpStatusError(resp.StatusCode, payload)}
	}

	var ticker tickerResponse
	if err := json.Unmarshal(payload, &ticker); err != nil {
		return decimal.Decimal{}, &FetchError{Asset: asset, Kind: KindParse, Err: err}
	}

	if ticker.RetCode != 0 {
		return decimal.Decimal{}, &FetchError{Asset: asset, Kind: KindUpstream, Err: fmt.Errorf("ret code %d: %s", ticker.RetCode, ticker.RetMsg)}
	}

	if len(ticker.Result.List) == 0 {
		return decimal.Decimal{}, &FetchError{Asset: asset, Kind: KindParse, Err: errors.New("ticker list empty")}
	}

	price, err := decimal.NewFromString(ticker.Result.List[0].LastPrice)
	if err != nil {
		return decimal.Decimal{}, &FetchError{Asset: asset, Kind: KindParse, Err: fmt.Errorf("parse last price: %w", err)}
	}

	b.logger.Debug().Str("asset", asset).Str("price", price.String()).Msg("ticker fetched")
	return price, nil
}

type tickerResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	} `json:"result"`
}

func httpStatusError(status int, payload []byte) error {
	body := strings.TrimSpace(string(payload))
	if len(body) > 200 {
		body = body[:200]
	}
	if body != "" {
		return fmt.Errorf("unexpected status %d: %s", status, body)
	}
	return fmt.Errorf("unexpected status %d", status)
}

var _ PriceFetcher = (*Bybit)(nil)

package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ratio-band-alerts/internal/fetcher"
	"ratio-band-alerts/internal/monitor"
)

// SimulateCheck 使用给定的 WAL/SUI 价格走一遍完整的监控周期，
// 包括真实的偏好读写与告警派发。
func (a *App) SimulateCheck(ctx context.Context, walPrice, suiPrice decimal.Decimal) error {
	notifier, channels := a.newNotifier()

	static := &staticFetcher{prices: map[string]decimal.Decimal{
		baseAsset:  walPrice,
		quoteAsset: suiPrice,
	}}

	mon := monitor.New(monitor.Options{
		BaseAsset:  baseAsset,
		QuoteAsset: quoteAsset,
		Channels:   channels,
	}, static, a.newPrefsStore(), notifier, nil, nil, a.Logger)

	outcome, err := mon.RunCycle(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	a.Logger.Info().
		Bool("skipped", outcome.Skipped).
		Bool("notified", outcome.Notified).
		Str("ratio", outcome.Ratio.String()).
		Msg("simulated check complete")
	return nil
}

type staticFetcher struct {
	prices map[string]decimal.Decimal
}

func (s *staticFetcher) FetchPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	return s.prices[asset], nil
}

var _ fetcher.PriceFetcher = (*staticFetcher)(nil)

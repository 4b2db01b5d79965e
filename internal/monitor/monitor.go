package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ratio-band-alerts/internal/alerting"
	"ratio-band-alerts/internal/fetcher"
	"ratio-band-alerts/internal/metrics"
	"ratio-band-alerts/internal/prefs"
	"ratio-band-alerts/internal/storage"
)

// Options name the asset pair whose ratio is tracked.
type Options struct {
	BaseAsset  string
	QuoteAsset string
	Channels   []string
}

// Monitor runs the debounced band-crossing check. One instance, strictly
// sequential cycles; history stores are optional and may be nil.
type Monitor struct {
	fetcher  fetcher.PriceFetcher
	prefs    prefs.Store
	notifier alerting.Notifier
	samples  storage.RatioSampleStore
	alerts   storage.AlertStore
	logger   zerolog.Logger

	base     string
	quote    string
	channels []string
}

// New constructs the monitor.
func New(opts Options, pf fetcher.PriceFetcher, store prefs.Store, notifier alerting.Notifier, samples storage.RatioSampleStore, alerts storage.AlertStore, logger zerolog.Logger) *Monitor {
	return &Monitor{
		fetcher:  pf,
		prefs:    store,
		notifier: notifier,
		samples:  samples,
		alerts:   alerts,
		logger:   logger.With().Str("component", "monitor").Logger(),
		base:     opts.BaseAsset,
		quote:    opts.QuoteAsset,
		channels: opts.Channels,
	}
}

// Outcome summarises one cycle for callers that trigger it directly.
type Outcome struct {
	Skipped  bool            `json:"skipped"`
	Reason   string          `json:"reason,omitempty"`
	Ratio    decimal.Decimal `json:"ratio,omitempty"`
	State    prefs.State     `json:"state,omitempty"`
	Notified bool            `json:"notified"`
}

// Tick adapts RunCycle to the scheduler signature.
func (m *Monitor) Tick(ctx context.Context, at time.Time) error {
	_, err := m.RunCycle(ctx, at)
	return err
}

// RunCycle executes one check: read preferences, fetch both prices, classify
// the ratio against the band, and notify exactly on state transition. The
// notified state is persisted only after successful delivery so failed
// dispatches are re-attempted next cycle.
func (m *Monitor) RunCycle(ctx context.Context, at time.Time) (Outcome, error) {
	metrics.CyclesTotal.Inc()

	p, err := m.prefs.Read(ctx)
	if err != nil {
		metrics.CycleErrors.Inc()
		return Outcome{}, fmt.Errorf("read preferences: %w", err)
	}

	if reason := skipReason(p); reason != "" {
		metrics.CyclesSkipped.Inc()
		m.logger.Debug().Str("reason", reason).Msg("cycle skipped")
		return Outcome{Skipped: true, Reason: reason}, nil
	}

	band, err := p.Band()
	if err != nil {
		metrics.CycleErrors.Inc()
		return Outcome{}, fmt.Errorf("parse band: %w", err)
	}

	walPrice, suiPrice, err := m.fetchPair(ctx)
	if err != nil {
		metrics.CycleErrors.Inc()
		m.recordErroredSample(ctx, at, err)
		m.logger.Warn().Err(err).Msg("price fetch failed, skipping cycle")
		return Outcome{}, err
	}

	ratio := walPrice.Div(suiPrice)
	state := band.Classify(ratio)
	metrics.CurrentRatio.Set(ratio.InexactFloat64())

	m.recordSample(ctx, storage.RatioSample{
		Bucket:   at,
		WalPrice: walPrice,
		SuiPrice: suiPrice,
		Ratio:    ratio,
		State:    string(state),
		Status:   "complete",
	})

	m.logger.Info().
		Str("ratio", ratio.StringFixed(6)).
		Str("state", string(state)).
		Msg("ratio evaluated")

	outcome := Outcome{Ratio: ratio, State: state}

	if p.LastNotifiedState != nil && *p.LastNotifiedState == state {
		m.logger.Debug().Str("state", string(state)).Msg("state unchanged, no notification")
		return outcome, nil
	}

	note := alerting.Notification{
		At:        at,
		Recipient: p.Email,
		Ratio:     ratio,
		MinRange:  band.Min,
		MaxRange:  band.Max,
		NewState:  state,
	}

	if err := m.notifier.Notify(ctx, note); err != nil {
		metrics.NotificationFailures.Inc()
		m.logger.Error().Err(err).Str("state", string(state)).Msg("notification dispatch failed, will retry next cycle")
		// Not persisted: the transition stays pending until delivery works.
		return outcome, fmt.Errorf("dispatch notification: %w", err)
	}
	metrics.NotificationsTotal.WithLabelValues(string(state)).Inc()

	if m.alerts != nil {
		record := storage.AlertRecord{
			SampleTS: at,
			Ratio:    ratio,
			MinRange: band.Min,
			MaxRange: band.Max,
			State:    string(state),
			Channels: m.channels,
		}
		if _, err := m.alerts.InsertAlert(ctx, record); err != nil {
			m.logger.Error().Err(err).Msg("failed to persist alert record")
		}
	}

	if _, err := m.prefs.Update(ctx, prefs.Patch{LastNotifiedState: &state}); err != nil {
		metrics.CycleErrors.Inc()
		return outcome, fmt.Errorf("persist notified state: %w", err)
	}

	outcome.Notified = true
	m.logger.Info().Str("state", string(state)).Msg("state transition notified")
	return outcome, nil
}

func skipReason(p prefs.UserPreferences) string {
	if !p.NotificationsEnabled {
		return "notifications disabled"
	}
	if p.Email == "" {
		return "no recipient email"
	}
	band, err := p.Band()
	if err != nil || !band.IsSet() {
		return "band not set"
	}
	return ""
}

func (m *Monitor) fetchPair(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	start := time.Now()

	type result struct {
		asset string
		price decimal.Decimal
		err   error
	}

	results := make(chan result, 2)
	for _, asset := range []string{m.base, m.quote} {
		go func(a string) {
			price, err := m.fetcher.FetchPrice(ctx, a)
			results <- result{asset: a, price: price, err: err}
		}(asset)
	}

	prices := make(map[string]decimal.Decimal, 2)
	var firstErr error
	for i := 0; i < 2; i++ {
		res := <-results
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		prices[res.asset] = res.price
	}
	metrics.FetchLatency.Observe(time.Since(start).Seconds())

	if firstErr != nil {
		return decimal.Decimal{}, decimal.Decimal{}, firstErr
	}

	for _, asset := range []string{m.base, m.quote} {
		if !prices[asset].IsPositive() {
			return decimal.Decimal{}, decimal.Decimal{}, &fetcher.FetchError{
				Asset: asset,
				Kind:  fetcher.KindParse,
				Err:   fmt.Errorf("non-positive price %s", prices[asset]),
			}
		}
	}

	return prices[m.base], prices[m.quote], nil
}

func (m *Monitor) recordSample(ctx context.Context, sample storage.RatioSample) {
	if m.samples == nil {
		return
	}
	if err := m.samples.UpsertRatioSample(ctx, sample); err != nil {
		m.logger.Error().Err(err).Time("bucket", sample.Bucket).Msg("failed to upsert sample")
	}
}

func (m *Monitor) recordErroredSample(ctx context.Context, at time.Time, cause error) {
	if m.samples == nil {
		return
	}
	msg := cause.Error()
	m.recordSample(ctx, storage.RatioSample{
		Bucket: at,
		Status: "errored",
		Error:  &msg,
	})
}

package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ratio-band-alerts/internal/alerting"
	"ratio-band-alerts/internal/fetcher"
	"ratio-band-alerts/internal/prefs"
)

type fakeFetcher struct {
	prices map[string]decimal.Decimal
	errs   map[string]error
	calls  int
}

func (f *fakeFetcher) FetchPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	f.calls++
	if err := f.errs[asset]; err != nil {
		return decimal.Decimal{}, err
	}
	return f.prices[asset], nil
}

type fakeNotifier struct {
	notes []alerting.Notification
	err   error
}

func (f *fakeNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.notes = append(f.notes, note)
	return nil
}

type fixture struct {
	monitor  *Monitor
	fetcher  *fakeFetcher
	notifier *fakeNotifier
	prefs    prefs.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ff := &fakeFetcher{prices: map[string]decimal.Decimal{
		"WAL": decimal.RequireFromString("1.20"),
		"SUI": decimal.RequireFromString("2.00"),
	}}
	fn := &fakeNotifier{}
	store := prefs.NewFileStore(filepath.Join(t.TempDir(), "preferences.json"), zerolog.Nop())

	mon := New(Options{
		BaseAsset:  "WAL",
		QuoteAsset: "SUI",
		Channels:   []string{"email"},
	}, ff, store, fn, nil, nil, zerolog.Nop())

	return &fixture{monitor: mon, fetcher: ff, notifier: fn, prefs: store}
}

func (f *fixture) configure(t *testing.T, min, max string) {
	t.Helper()
	email := "user@example.com"
	enabled := true
	patch := prefs.Patch{
		Email:                &email,
		MinRange:             &min,
		MaxRange:             &max,
		NotificationsEnabled: &enabled,
	}
	if _, err := f.prefs.Update(context.Background(), patch); err != nil {
		t.Fatalf("configure preferences: %v", err)
	}
}

func (f *fixture) run(t *testing.T) Outcome {
	t.Helper()
	outcome, err := f.monitor.RunCycle(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	return outcome
}

func (f *fixture) setPrice(asset, price string) {
	f.fetcher.prices[asset] = decimal.RequireFromString(price)
}

func (f *fixture) lastState(t *testing.T) *prefs.State {
	t.Helper()
	record, err := f.prefs.Read(context.Background())
	if err != nil {
		t.Fatalf("read preferences: %v", err)
	}
	return record.LastNotifiedState
}

func TestCycleSkipsWhenDisabled(t *testing.T) {
	f := newFixture(t)

	outcome := f.run(t)
	if !outcome.Skipped {
		t.Fatal("cycle with default preferences must be skipped")
	}
	if f.fetcher.calls != 0 {
		t.Fatalf("skipped cycle must not fetch, got %d calls", f.fetcher.calls)
	}
}

func TestCycleSkipsWhenBandUnset(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "0.000000", "0.000000")

	outcome := f.run(t)
	if !outcome.Skipped || outcome.Reason != "band not set" {
		t.Fatalf("zero band must skip even when enabled, got %+v", outcome)
	}
	if f.fetcher.calls != 0 {
		t.Fatal("unset band must not trigger fetches")
	}
	if len(f.notifier.notes) != 0 {
		t.Fatal("unset band must never notify")
	}
}

func TestCycleScenarioClassification(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "0.5", "0.7")

	outcome := f.run(t)
	if outcome.Ratio.StringFixed(6) != "0.600000" {
		t.Fatalf("expected ratio 0.600000, got %s", outcome.Ratio)
	}
	if outcome.State != prefs.StateInRange {
		t.Fatalf("band [0.5,0.7] must be in-range, got %s", outcome.State)
	}

	f.configure(t, "0.65", "0.9")
	outcome = f.run(t)
	if outcome.State != prefs.StateOutOfRange {
		t.Fatalf("band [0.65,0.9] must be out-of-range, got %s", outcome.State)
	}
}

func TestFirstClassificationNotifies(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "0.5", "0.7")

	outcome := f.run(t)
	if !outcome.Notified {
		t.Fatal("first classification after nil state must notify")
	}
	if len(f.notifier.notes) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(f.notifier.notes))
	}

	note := f.notifier.notes[0]
	if note.NewState != prefs.StateInRange {
		t.Errorf("unexpected state in payload: %s", note.NewState)
	}
	if note.Recipient != "user@example.com" {
		t.Errorf("recipient not taken from preferences: %s", note.Recipient)
	}

	if state := f.lastState(t); state == nil || *state != prefs.StateInRange {
		t.Fatal("delivered transition must be persisted")
	}
}

func TestDebounceAcrossTransitions(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "0.5", "0.7")

	// Seed the persisted state with the initial in-range notification.
	f.run(t)
	f.notifier.notes = nil

	// in, in, out, out, in -> exactly two more notifications.
	f.run(t)
	f.setPrice("WAL", "1.60") // ratio 0.8
	f.run(t)
	f.run(t)
	f.setPrice("WAL", "1.20") // ratio 0.6
	f.run(t)

	if len(f.notifier.notes) != 2 {
		t.Fatalf("expected 2 notifications for in,in,out,out,in, got %d", len(f.notifier.notes))
	}
	if f.notifier.notes[0].NewState != prefs.StateOutOfRange {
		t.Errorf("first edge must be out-of-range, got %s", f.notifier.notes[0].NewState)
	}
	if f.notifier.notes[1].NewState != prefs.StateInRange {
		t.Errorf("second edge must be in-range, got %s", f.notifier.notes[1].NewState)
	}
}

func TestBoundaryRatioIsInRange(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "0.6", "0.9")

	// ratio == min exactly
	outcome := f.run(t)
	if outcome.State != prefs.StateInRange {
		t.Fatalf("ratio equal to min must be in-range, got %s", outcome.State)
	}

	f.configure(t, "0.3", "0.6")
	outcome = f.run(t)
	if outcome.State != prefs.StateInRange {
		t.Fatalf("ratio equal to max must be in-range, got %s", outcome.State)
	}
}

func TestFetchFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "0.5", "0.7")
	f.run(t) // persists in-range

	f.fetcher.errs = map[string]error{
		"SUI": &fetcher.FetchError{Asset: "SUI", Kind: fetcher.KindTransport, Err: errors.New("timeout")},
	}
	f.notifier.notes = nil

	if _, err := f.monitor.RunCycle(context.Background(), time.Now().UTC()); err == nil {
		t.Fatal("fetch failure must surface as cycle error")
	}
	if len(f.notifier.notes) != 0 {
		t.Fatal("fetch failure must not notify")
	}
	if state := f.lastState(t); state == nil || *state != prefs.StateInRange {
		t.Fatal("fetch failure must leave lastNotifiedState unchanged")
	}
}

func TestNonPositivePriceTreatedAsFetchFailure(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "0.5", "0.7")
	f.setPrice("SUI", "0")

	_, err := f.monitor.RunCycle(context.Background(), time.Now().UTC())
	var fe *fetcher.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected fetch error for zero price, got %v", err)
	}
	if len(f.notifier.notes) != 0 {
		t.Fatal("zero price must not notify")
	}
}

func TestDeliveryFailureRetriesNextCycle(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "0.5", "0.7")

	f.notifier.err = &alerting.DeliveryError{Channel: "email", Err: errors.New("smtp down")}
	if _, err := f.monitor.RunCycle(context.Background(), time.Now().UTC()); err == nil {
		t.Fatal("delivery failure must surface as cycle error")
	}
	if state := f.lastState(t); state != nil {
		t.Fatal("failed delivery must not persist the transition")
	}

	// Delivery recovers: the pending transition is re-sent.
	f.notifier.err = nil
	outcome := f.run(t)
	if !outcome.Notified {
		t.Fatal("recovered delivery must re-send the pending transition")
	}
	if state := f.lastState(t); state == nil || *state != prefs.StateInRange {
		t.Fatal("recovered delivery must persist the state")
	}
}

func TestResetOnEditRenotifiesSameState(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "0.5", "0.7")
	f.run(t) // in-range notified and persisted
	f.notifier.notes = nil

	// Re-setting the same band clears the notified state.
	f.configure(t, "0.5", "0.7")
	if state := f.lastState(t); state != nil {
		t.Fatal("band edit must reset lastNotifiedState")
	}

	outcome := f.run(t)
	if !outcome.Notified {
		t.Fatal("cycle after band edit must re-notify even an unchanged classification")
	}
	if len(f.notifier.notes) != 1 || f.notifier.notes[0].NewState != prefs.StateInRange {
		t.Fatalf("unexpected notifications after band edit: %+v", f.notifier.notes)
	}
}

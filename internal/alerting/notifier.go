package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ratio-band-alerts/internal/prefs"
)

// ErrNotConfigured indicates a channel is missing required credentials.
var ErrNotConfigured = errors.New("notifier not configured")

// Notification 封装一次状态切换的告警上下文。
type Notification struct {
	At        time.Time
	Recipient string
	Ratio     decimal.Decimal
	MinRange  decimal.Decimal
	MaxRange  decimal.Decimal
	NewState  prefs.State
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// DeliveryError reports a failed delivery on a specific channel.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver via %s: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// MultiNotifier fans a notification out to every configured channel. Any
// channel failure fails the whole dispatch so the monitor retries next cycle;
// a duplicate on the channel that did succeed is accepted.
type MultiNotifier struct {
	services []Notifier
}

// NewMultiNotifier aggregates the given channels.
func NewMultiNotifier(services ...Notifier) *MultiNotifier {
	return &MultiNotifier{services: services}
}

// Notify dispatches to all channels and joins their failures.
func (m *MultiNotifier) Notify(ctx context.Context, note Notification) error {
	if len(m.services) == 0 {
		return &DeliveryError{Channel: "all", Err: ErrNotConfigured}
	}

	var errs []error
	for _, svc := range m.services {
		if err := svc.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = (*MultiNotifier)(nil)

package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// RatioSample is one evaluated monitor cycle kept for history.
type RatioSample struct {
	Bucket    time.Time
	WalPrice  decimal.Decimal
	SuiPrice  decimal.Decimal
	Ratio     decimal.Decimal
	State     string
	Status    string
	Error     *string
	CreatedAt time.Time
}

// AlertRecord captures a delivered notification for auditing.
type AlertRecord struct {
	ID        int64
	SampleTS  time.Time
	Ratio     decimal.Decimal
	MinRange  decimal.Decimal
	MaxRange  decimal.Decimal
	State     string
	Channels  []string
	CreatedAt time.Time
}

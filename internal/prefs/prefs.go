package prefs

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/shopspring/decimal"
)

// State is the persisted notification state of the ratio band.
type State string

const (
	StateInRange    State = "in-range"
	StateOutOfRange State = "out-of-range"
)

// Valid reports whether s is a known state value.
func (s State) Valid() bool {
	return s == StateInRange || s == StateOutOfRange
}

// UserPreferences is the single persisted settings record. A nil
// LastNotifiedState means no notification has fired since the band was last
// changed or cleared.
type UserPreferences struct {
	Email                string `json:"email"`
	MinRange             string `json:"minRange"`
	MaxRange             string `json:"maxRange"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	LastNotifiedState    *State `json:"lastNotifiedState"`
}

// Defaults returns the record written on first access.
func Defaults() UserPreferences {
	return UserPreferences{
		Email:    "",
		MinRange: "0.000000",
		MaxRange: "0.000000",
	}
}

// Band is the inclusive [min, max] acceptance interval for the ratio.
type Band struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// IsSet reports whether the band has been configured. The contract is
// "set iff either bound is nonzero".
func (b Band) IsSet() bool {
	return b.Min.IsPositive() || b.Max.IsPositive()
}

// Classify places a ratio relative to the band. Boundaries are inclusive: a
// ratio exactly equal to min or max is in-range.
func (b Band) Classify(ratio decimal.Decimal) State {
	if ratio.LessThan(b.Min) || ratio.GreaterThan(b.Max) {
		return StateOutOfRange
	}
	return StateInRange
}

// Band parses the record's min/max bounds.
func (p UserPreferences) Band() (Band, error) {
	min, err := decimal.NewFromString(p.MinRange)
	if err != nil {
		return Band{}, fmt.Errorf("parse minRange: %w", err)
	}
	max, err := decimal.NewFromString(p.MaxRange)
	if err != nil {
		return Band{}, fmt.Errorf("parse maxRange: %w", err)
	}
	return Band{Min: min, Max: max}, nil
}

// ValidationError reports a rejected preference merge. The stored record is
// unchanged when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid preferences: %s: %s", e.Field, e.Reason)
}

// Validate checks a whole merged record against the schema.
func (p UserPreferences) Validate() error {
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return &ValidationError{Field: "email", Reason: "not a valid address"}
		}
	}

	min, err := decimal.NewFromString(p.MinRange)
	if err != nil {
		return &ValidationError{Field: "minRange", Reason: "not a decimal"}
	}
	max, err := decimal.NewFromString(p.MaxRange)
	if err != nil {
		return &ValidationError{Field: "maxRange", Reason: "not a decimal"}
	}
	if min.IsNegative() {
		return &ValidationError{Field: "minRange", Reason: "must not be negative"}
	}
	if max.IsNegative() {
		return &ValidationError{Field: "maxRange", Reason: "must not be negative"}
	}
	if min.IsPositive() && max.IsPositive() && !min.LessThan(max) {
		return &ValidationError{Field: "minRange", Reason: "must be less than maxRange"}
	}

	if p.LastNotifiedState != nil && !p.LastNotifiedState.Valid() {
		return &ValidationError{Field: "lastNotifiedState", Reason: "unknown state"}
	}

	return nil
}

// Patch carries a partial preference update. Nil fields are absent and leave
// the prior value untouched; present fields override it.
type Patch struct {
	Email                *string
	MinRange             *string
	MaxRange             *string
	NotificationsEnabled *bool
	LastNotifiedState    *State
}

func (p Patch) apply(cur UserPreferences) UserPreferences {
	if p.Email != nil {
		cur.Email = *p.Email
	}
	if p.MinRange != nil {
		cur.MinRange = *p.MinRange
	}
	if p.MaxRange != nil {
		cur.MaxRange = *p.MaxRange
	}
	if p.NotificationsEnabled != nil {
		cur.NotificationsEnabled = *p.NotificationsEnabled
	}
	if p.LastNotifiedState != nil {
		state := *p.LastNotifiedState
		cur.LastNotifiedState = &state
	}
	return cur
}

// touchesBand reports whether the patch edits either band bound.
func (p Patch) touchesBand() bool {
	return p.MinRange != nil || p.MaxRange != nil
}

// Store is the durable read/update contract for the preference record.
type Store interface {
	// Read returns the current record, self-healing an absent or corrupt
	// backing document to defaults.
	Read(ctx context.Context) (UserPreferences, error)
	// Update merges the patch over the current record, validates the result,
	// and replaces the whole record. Editing the band resets
	// LastNotifiedState to nil.
	Update(ctx context.Context, patch Patch) (UserPreferences, error)
}

package prefs

import (
	"testing"

	"github.com/shopspring/decimal"
)

func mustBand(t *testing.T, min, max string) Band {
	t.Helper()
	return Band{
		Min: decimal.RequireFromString(min),
		Max: decimal.RequireFromString(max),
	}
}

func TestBandClassifyBoundariesInclusive(t *testing.T) {
	band := mustBand(t, "0.5", "0.7")

	cases := []struct {
		ratio string
		want  State
	}{
		{"0.5", StateInRange},
		{"0.7", StateInRange},
		{"0.6", StateInRange},
		{"0.499999", StateOutOfRange},
		{"0.700001", StateOutOfRange},
	}

	for _, tc := range cases {
		got := band.Classify(decimal.RequireFromString(tc.ratio))
		if got != tc.want {
			t.Errorf("Classify(%s) = %s, want %s", tc.ratio, got, tc.want)
		}
	}
}

func TestBandClassifyScenario(t *testing.T) {
	// WAL=1.20, SUI=2.00 -> ratio 0.600000
	ratio := decimal.RequireFromString("1.20").Div(decimal.RequireFromString("2.00"))
	if ratio.StringFixed(6) != "0.600000" {
		t.Fatalf("unexpected ratio %s", ratio)
	}

	if got := mustBand(t, "0.5", "0.7").Classify(ratio); got != StateInRange {
		t.Errorf("band [0.5,0.7] should classify in-range, got %s", got)
	}
	if got := mustBand(t, "0.65", "0.9").Classify(ratio); got != StateOutOfRange {
		t.Errorf("band [0.65,0.9] should classify out-of-range, got %s", got)
	}
}

func TestBandIsSet(t *testing.T) {
	if mustBand(t, "0", "0").IsSet() {
		t.Error("zero band must be unset")
	}
	if !mustBand(t, "0.5", "0").IsSet() {
		t.Error("band with min only must count as set")
	}
	if !mustBand(t, "0", "0.7").IsSet() {
		t.Error("band with max only must count as set")
	}
}

func TestValidateRejectsBadRecords(t *testing.T) {
	state := State("sideways")
	cases := []struct {
		name   string
		record UserPreferences
	}{
		{"bad email", UserPreferences{Email: "not-an-address", MinRange: "0", MaxRange: "0"}},
		{"bad min", UserPreferences{MinRange: "abc", MaxRange: "0"}},
		{"negative max", UserPreferences{MinRange: "0", MaxRange: "-1"}},
		{"min above max", UserPreferences{MinRange: "0.9", MaxRange: "0.5"}},
		{"unknown state", UserPreferences{MinRange: "0", MaxRange: "0", LastNotifiedState: &state}},
	}

	for _, tc := range cases {
		if err := tc.record.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestPatchApplyPartial(t *testing.T) {
	email := "user@example.com"
	enabled := true
	cur := Defaults()

	merged := Patch{Email: &email, NotificationsEnabled: &enabled}.apply(cur)
	if merged.Email != email || !merged.NotificationsEnabled {
		t.Fatalf("patched fields not applied: %+v", merged)
	}
	if merged.MinRange != cur.MinRange || merged.MaxRange != cur.MaxRange {
		t.Fatalf("absent fields must keep prior values: %+v", merged)
	}
}

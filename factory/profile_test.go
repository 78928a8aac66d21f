package factory

import (
	"strings"
	"testing"

	"github.com/coopware/share-engine/ledger"
)

func TestParseProfile_GrowingCoop(t *testing.T) {
	// GIVEN the built-in growing-coop profile
	f := NewProfileFactory()

	// WHEN it is parsed
	profile, err := f.ParseProfile(GrowingCoopJSON())

	// THEN the plan carries the overridden settings and all five members
	if err != nil {
		t.Fatalf("ParseProfile failed: %v", err)
	}
	if profile.Name != "growing-coop" {
		t.Errorf("expected name growing-coop, got %s", profile.Name)
	}
	if !profile.Settings.ShareDenomination.Equal(ledger.MustDecimal("250.00")) {
		t.Errorf("expected denomination 250.00, got %s", profile.Settings.ShareDenomination)
	}
	if profile.Settings.MaxSharesPerMember != 20 {
		t.Errorf("expected max shares 20, got %d", profile.Settings.MaxSharesPerMember)
	}
	// Notice days were not overridden; the default must survive
	if profile.Settings.OffboardingNoticeDays != ledger.DefaultSettings().OffboardingNoticeDays {
		t.Errorf("expected default notice days, got %d", profile.Settings.OffboardingNoticeDays)
	}
	if len(profile.Members) != 5 {
		t.Fatalf("expected 5 members, got %d", len(profile.Members))
	}

	ada := profile.Members[0]
	if ada.Number != "MEM001" || ada.Quantity != 3 || !ada.Paid {
		t.Errorf("unexpected first member: %+v", ada)
	}
	if len(ada.Certificates) != 1 {
		t.Fatalf("expected 1 extra certificate for Ada, got %d", len(ada.Certificates))
	}
	if len(ada.Certificates[0].Dividends) != 2 {
		t.Errorf("expected 2 dividends, got %d", len(ada.Certificates[0].Dividends))
	}
	if !ada.Certificates[0].Dividends[0].Amount.Equal(ledger.MustDecimal("18.75")) {
		t.Errorf("unexpected dividend amount %s", ada.Certificates[0].Dividends[0].Amount)
	}

	if !profile.Members[4].Suspended {
		t.Error("expected the fifth member to be suspended")
	}
}

func TestParseProfile_AllPresetsAreValid(t *testing.T) {
	f := NewProfileFactory()
	for _, preset := range BuiltinProfiles() {
		// Strict parsing: presets must not drift from the schema
		profile, err := f.ParseProfileStrict(preset.JSON)
		if err != nil {
			t.Errorf("preset %s failed to parse: %v", preset.Name, err)
			continue
		}
		if profile.Name != preset.Name {
			t.Errorf("preset %s declares profile name %s", preset.Name, profile.Name)
		}
		if len(profile.Members) == 0 {
			t.Errorf("preset %s has no members", preset.Name)
		}
	}
}

func TestParseProfile_DefaultsWithoutSettings(t *testing.T) {
	// GIVEN a minimal profile with no settings block
	f := NewProfileFactory()

	// WHEN parsed
	profile, err := f.ParseProfile(`{"name": "minimal", "members": [{"name": "Solo", "quantity": 1}]}`)

	// THEN the defaults apply
	if err != nil {
		t.Fatalf("ParseProfile failed: %v", err)
	}
	defaults := ledger.DefaultSettings()
	if !profile.Settings.ShareDenomination.Equal(defaults.ShareDenomination) {
		t.Errorf("expected default denomination, got %s", profile.Settings.ShareDenomination)
	}
	if profile.Settings.MaxSharesPerMember != defaults.MaxSharesPerMember {
		t.Errorf("expected default max shares, got %d", profile.Settings.MaxSharesPerMember)
	}
}

func TestParseProfile_ValidationFailures(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		fragment string
	}{
		{
			name:     "missing profile name",
			json:     `{"members": [{"name": "Solo", "quantity": 1}]}`,
			fragment: "profile name is required",
		},
		{
			name:     "missing member name",
			json:     `{"name": "p", "members": [{"quantity": 1}]}`,
			fragment: "name is required",
		},
		{
			name:     "zero quantity",
			json:     `{"name": "p", "members": [{"name": "Solo", "quantity": 0}]}`,
			fragment: "quantity must be at least 1",
		},
		{
			name:     "malformed member number",
			json:     `{"name": "p", "members": [{"name": "Solo", "number": "XYZ9", "quantity": 1}]}`,
			fragment: "malformed member number",
		},
		{
			name: "duplicate member numbers",
			json: `{"name": "p", "members": [
				{"name": "A", "number": "MEM001", "quantity": 1},
				{"name": "B", "number": "MEM001", "quantity": 1}]}`,
			fragment: "duplicate member number",
		},
		{
			name:     "malformed denomination",
			json:     `{"name": "p", "settings": {"share_denomination": "abc"}}`,
			fragment: "invalid share_denomination",
		},
		{
			name:     "negative denomination",
			json:     `{"name": "p", "settings": {"share_denomination": "-5"}}`,
			fragment: "must be positive",
		},
		{
			name: "zero certificate quantity",
			json: `{"name": "p", "members": [
				{"name": "Solo", "quantity": 1, "certificates": [{"quantity": 0}]}]}`,
			fragment: "quantity must be at least 1",
		},
		{
			name: "malformed dividend amount",
			json: `{"name": "p", "members": [
				{"name": "Solo", "quantity": 1, "certificates": [
					{"quantity": 1, "dividends": [{"year": 2023, "amount": "oops"}]}]}]}`,
			fragment: "invalid amount",
		},
		{
			name: "zero dividend amount",
			json: `{"name": "p", "members": [
				{"name": "Solo", "quantity": 1, "certificates": [
					{"quantity": 1, "dividends": [{"year": 2023, "amount": "0"}]}]}]}`,
			fragment: "amount must be positive",
		},
		{
			name: "implausible dividend year",
			json: `{"name": "p", "members": [
				{"name": "Solo", "quantity": 1, "certificates": [
					{"quantity": 1, "dividends": [{"year": 23, "amount": "10"}]}]}]}`,
			fragment: "implausible year",
		},
	}

	f := NewProfileFactory()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ParseProfile(tc.json)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.fragment) {
				t.Errorf("expected error containing %q, got: %v", tc.fragment, err)
			}
		})
	}
}

func TestParseProfileStrict_RejectsUnknownFields(t *testing.T) {
	f := NewProfileFactory()
	withTypo := `{"name": "p", "members": [{"name": "Solo", "quantity": 1, "payed": true}]}`

	// Lenient parsing shrugs
	if _, err := f.ParseProfile(withTypo); err != nil {
		t.Fatalf("lenient parse should succeed: %v", err)
	}

	// Strict parsing catches the typo
	if _, err := f.ParseProfileStrict(withTypo); err == nil {
		t.Fatal("strict parse should reject the unknown field")
	}
}

func TestParseProfile_MalformedJSON(t *testing.T) {
	f := NewProfileFactory()
	_, err := f.ParseProfile(`{"name": "p", "members": [`)
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if !strings.Contains(err.Error(), "failed to parse profile JSON") {
		t.Errorf("unexpected error: %v", err)
	}
}

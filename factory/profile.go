/*
Package factory provides JSON to Go cooperative profile conversion.

PURPOSE:
  Converts JSON profile definitions into validated seed plans: the
  cooperative's settings plus the members, certificates, payments and
  dividends to populate a fresh ledger with. This enables demo and test
  data configuration without code changes.

JSON SCHEMA:
  {
    "name": "growing-coop",
    "description": "Five members at different lifecycle stages",
    "settings": {
      "share_denomination": "250.00",
      "max_shares_per_member": 100,
      "offboarding_notice_days": 90
    },
    "members": [
      {
        "name": "Ada Lovelace",
        "email": "ada@coop.example",
        "number": "MEM001",
        "quantity": 3,
        "paid": true,
        "certificates": [
          {
            "quantity": 2,
            "paid": true,
            "issued_months_ago": 6,
            "dividends": [{"year": 2023, "amount": "18.75"}]
          }
        ]
      }
    ]
  }

VALIDATION:
  - Profile and member names are required
  - Quantities must be positive integers
  - Declared member numbers must be well formed and unique
  - Amounts must parse as decimals; dividend amounts must be positive
  - Strict parsing additionally rejects unknown JSON fields

  Declared member numbers are an expectation, not an instruction: numbers
  are allocated sequentially at seed time, so a declared number lets the
  seeder verify the profile was written against an empty ledger.

USAGE:
  factory := NewProfileFactory()

  profile, err := factory.ParseProfile(jsonString)

  // Built-in demo profile
  profile, err = factory.ParseProfile(GrowingCoopJSON())

SEE ALSO:
  - presets.go: Built-in demo profiles
  - api/scenarios.go: Reset-and-seed endpoints built on these profiles
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/coopware/share-engine/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ProfileJSON is the JSON representation of a cooperative profile.
type ProfileJSON struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Settings    *SettingsJSON `json:"settings,omitempty"`
	Members     []MemberJSON  `json:"members,omitempty"`
}

// SettingsJSON overrides the default cooperative settings.
type SettingsJSON struct {
	ShareDenomination     string `json:"share_denomination,omitempty"` // decimal string
	MaxSharesPerMember    int    `json:"max_shares_per_member,omitempty"`
	OffboardingNoticeDays int    `json:"offboarding_notice_days,omitempty"`
}

// MemberJSON seeds one member with their initial certificate.
type MemberJSON struct {
	Name         string            `json:"name"`
	Email        string            `json:"email,omitempty"`
	Number       string            `json:"number,omitempty"` // expected member number, e.g. "MEM001"
	Quantity     int               `json:"quantity"`
	Paid         bool              `json:"paid,omitempty"`
	Suspended    bool              `json:"suspended,omitempty"`
	Certificates []CertificateJSON `json:"certificates,omitempty"`
}

// CertificateJSON seeds an additional certificate beyond the initial one.
type CertificateJSON struct {
	Quantity        int            `json:"quantity"`
	Paid            bool           `json:"paid,omitempty"`
	IssuedMonthsAgo int            `json:"issued_months_ago,omitempty"`
	Dividends       []DividendJSON `json:"dividends,omitempty"`
}

// DividendJSON seeds a dividend declaration against a certificate.
type DividendJSON struct {
	Year   int    `json:"year"`
	Amount string `json:"amount"` // decimal string
}

// =============================================================================
// VALIDATED PLAN TYPES
// =============================================================================

// Profile is a validated seed plan.
type Profile struct {
	Name        string
	Description string
	Settings    ledger.CooperativeSettings
	Members     []SeedMember
}

// SeedMember is one member of the plan; Number is empty unless the
// profile declared an expected member number.
type SeedMember struct {
	Number       string
	Name         string
	Email        string
	Quantity     int
	Paid         bool
	Suspended    bool
	Certificates []SeedCertificate
}

// SeedCertificate is an additional certificate to issue, backdated by
// IssuedMonthsAgo relative to the seed time.
type SeedCertificate struct {
	Quantity        int
	Paid            bool
	IssuedMonthsAgo int
	Dividends       []SeedDividend
}

// SeedDividend is a dividend to record against the enclosing certificate.
type SeedDividend struct {
	Year   int
	Amount decimal.Decimal
}

// =============================================================================
// PROFILE FACTORY
// =============================================================================

// ProfileFactory converts JSON profiles to validated seed plans.
type ProfileFactory struct{}

// NewProfileFactory creates a new profile factory.
func NewProfileFactory() *ProfileFactory {
	return &ProfileFactory{}
}

// ParseProfile parses a JSON string into a validated Profile. Unknown
// fields are ignored.
func (f *ProfileFactory) ParseProfile(jsonStr string) (*Profile, error) {
	var pj ProfileJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse profile JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// ParseProfileStrict parses like ParseProfile but rejects unknown JSON
// fields, catching typos in hand-written profiles.
func (f *ProfileFactory) ParseProfileStrict(jsonStr string) (*Profile, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(jsonStr)))
	dec.DisallowUnknownFields()

	var pj ProfileJSON
	if err := dec.Decode(&pj); err != nil {
		return nil, fmt.Errorf("failed to parse profile JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts ProfileJSON to a validated Profile.
func (f *ProfileFactory) FromJSON(pj ProfileJSON) (*Profile, error) {
	if strings.TrimSpace(pj.Name) == "" {
		return nil, fmt.Errorf("profile name is required")
	}

	settings, err := parseSettings(pj.Settings)
	if err != nil {
		return nil, err
	}

	profile := &Profile{
		Name:        pj.Name,
		Description: pj.Description,
		Settings:    settings,
	}

	declaredNumbers := make(map[string]int)
	for i, mj := range pj.Members {
		member, err := parseMember(mj, i)
		if err != nil {
			return nil, err
		}
		if member.Number != "" {
			if prev, ok := declaredNumbers[member.Number]; ok {
				return nil, fmt.Errorf("member %d: duplicate member number %s (also declared by member %d)",
					i+1, member.Number, prev)
			}
			declaredNumbers[member.Number] = i + 1
		}
		profile.Members = append(profile.Members, member)
	}

	return profile, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseSettings(sj *SettingsJSON) (ledger.CooperativeSettings, error) {
	settings := ledger.DefaultSettings()
	if sj == nil {
		return settings, nil
	}

	if sj.ShareDenomination != "" {
		denomination, err := decimal.NewFromString(sj.ShareDenomination)
		if err != nil {
			return settings, fmt.Errorf("invalid share_denomination %q: %w", sj.ShareDenomination, err)
		}
		if !denomination.IsPositive() {
			return settings, fmt.Errorf("share_denomination must be positive, got %s", sj.ShareDenomination)
		}
		settings.ShareDenomination = denomination
	}
	if sj.MaxSharesPerMember < 0 {
		return settings, fmt.Errorf("max_shares_per_member must not be negative")
	}
	if sj.MaxSharesPerMember > 0 {
		settings.MaxSharesPerMember = sj.MaxSharesPerMember
	}
	if sj.OffboardingNoticeDays < 0 {
		return settings, fmt.Errorf("offboarding_notice_days must not be negative")
	}
	if sj.OffboardingNoticeDays > 0 {
		settings.OffboardingNoticeDays = sj.OffboardingNoticeDays
	}
	return settings, nil
}

func parseMember(mj MemberJSON, index int) (SeedMember, error) {
	member := SeedMember{
		Number:    mj.Number,
		Name:      strings.TrimSpace(mj.Name),
		Email:     mj.Email,
		Quantity:  mj.Quantity,
		Paid:      mj.Paid,
		Suspended: mj.Suspended,
	}

	if member.Name == "" {
		return member, fmt.Errorf("member %d: name is required", index+1)
	}
	if member.Quantity < 1 {
		return member, fmt.Errorf("member %d (%s): quantity must be at least 1, got %d",
			index+1, member.Name, mj.Quantity)
	}
	if member.Number != "" {
		if _, ok := ledger.ParseNumber(member.Number, ledger.MemberNumberPrefix); !ok {
			return member, fmt.Errorf("member %d (%s): malformed member number %q",
				index+1, member.Name, member.Number)
		}
	}

	for j, cj := range mj.Certificates {
		cert, err := parseCertificate(cj, member.Name, j)
		if err != nil {
			return member, err
		}
		member.Certificates = append(member.Certificates, cert)
	}

	return member, nil
}

func parseCertificate(cj CertificateJSON, memberName string, index int) (SeedCertificate, error) {
	cert := SeedCertificate{
		Quantity:        cj.Quantity,
		Paid:            cj.Paid,
		IssuedMonthsAgo: cj.IssuedMonthsAgo,
	}

	if cert.Quantity < 1 {
		return cert, fmt.Errorf("member %s certificate %d: quantity must be at least 1, got %d",
			memberName, index+1, cj.Quantity)
	}
	if cert.IssuedMonthsAgo < 0 {
		return cert, fmt.Errorf("member %s certificate %d: issued_months_ago must not be negative",
			memberName, index+1)
	}

	for k, dj := range cj.Dividends {
		amount, err := decimal.NewFromString(dj.Amount)
		if err != nil {
			return cert, fmt.Errorf("member %s certificate %d dividend %d: invalid amount %q: %w",
				memberName, index+1, k+1, dj.Amount, err)
		}
		if !amount.IsPositive() {
			return cert, fmt.Errorf("member %s certificate %d dividend %d: amount must be positive",
				memberName, index+1, k+1)
		}
		if dj.Year < 1900 {
			return cert, fmt.Errorf("member %s certificate %d dividend %d: implausible year %d",
				memberName, index+1, k+1, dj.Year)
		}
		cert.Dividends = append(cert.Dividends, SeedDividend{Year: dj.Year, Amount: amount})
	}

	return cert, nil
}

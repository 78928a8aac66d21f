/*
presets.go - Built-in demo profiles

PURPOSE:
  Ready-made cooperative profiles for demos and manual testing. Each
  function returns the profile as JSON so the same definitions flow
  through the parser/validator that user-supplied profiles do.

SEE ALSO:
  - profile.go: Schema and validation
  - api/scenarios.go: Endpoints that reset and seed from these
*/
package factory

import (
	"encoding/json"
)

// BuiltinProfile pairs a profile name with its JSON definition.
type BuiltinProfile struct {
	Name        string
	Description string
	JSON        string
}

// BuiltinProfiles lists the demo profiles shipped with the server.
func BuiltinProfiles() []BuiltinProfile {
	return []BuiltinProfile{
		{
			Name:        "founding-board",
			Description: "Three founding members, all certificates paid in full",
			JSON:        FoundingBoardJSON(),
		},
		{
			Name:        "growing-coop",
			Description: "Five members at different lifecycle stages, one suspended",
			JSON:        GrowingCoopJSON(),
		},
		{
			Name:        "consolidation-ready",
			Description: "One member holding several small paid certificates of different ages",
			JSON:        ConsolidationReadyJSON(),
		},
	}
}

// FoundingBoardJSON returns the smallest useful cooperative: three
// members, one certificate each, everything paid.
func FoundingBoardJSON() string {
	pj := ProfileJSON{
		Name:        "founding-board",
		Description: "Three founding members, all certificates paid in full",
		Members: []MemberJSON{
			{Name: "Ada Lovelace", Email: "ada@coop.example", Number: "MEM001", Quantity: 3, Paid: true},
			{Name: "Grace Hopper", Email: "grace@coop.example", Number: "MEM002", Quantity: 2, Paid: true},
			{Name: "Alan Turing", Email: "alan@coop.example", Number: "MEM003", Quantity: 1, Paid: true},
		},
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// GrowingCoopJSON returns a mid-life cooperative: paid and unpaid
// certificates, dividend history, one suspended member.
func GrowingCoopJSON() string {
	pj := ProfileJSON{
		Name:        "growing-coop",
		Description: "Five members at different lifecycle stages, one suspended",
		Settings: &SettingsJSON{
			ShareDenomination:  "250.00",
			MaxSharesPerMember: 20,
		},
		Members: []MemberJSON{
			{
				Name: "Ada Lovelace", Email: "ada@coop.example", Number: "MEM001",
				Quantity: 3, Paid: true,
				Certificates: []CertificateJSON{
					{
						Quantity: 2, Paid: true, IssuedMonthsAgo: 18,
						Dividends: []DividendJSON{
							{Year: 2023, Amount: "18.75"},
							{Year: 2024, Amount: "21.00"},
						},
					},
				},
			},
			{
				Name: "Grace Hopper", Email: "grace@coop.example", Number: "MEM002",
				Quantity: 2, Paid: true,
				Certificates: []CertificateJSON{
					{Quantity: 1, Paid: false, IssuedMonthsAgo: 2},
				},
			},
			{Name: "Alan Turing", Email: "alan@coop.example", Number: "MEM003", Quantity: 1, Paid: true},
			{Name: "Edsger Dijkstra", Email: "edsger@coop.example", Number: "MEM004", Quantity: 1, Paid: false},
			{
				Name: "Margaret Hamilton", Email: "margaret@coop.example", Number: "MEM005",
				Quantity: 2, Paid: true, Suspended: true,
			},
		},
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// ConsolidationReadyJSON returns a member whose certificate pile is
// begging to be merged: same unit value, all paid, different ages.
func ConsolidationReadyJSON() string {
	pj := ProfileJSON{
		Name:        "consolidation-ready",
		Description: "One member holding several small paid certificates of different ages",
		Members: []MemberJSON{
			{
				Name: "Ada Lovelace", Email: "ada@coop.example", Number: "MEM001",
				Quantity: 1, Paid: true,
				Certificates: []CertificateJSON{
					{Quantity: 2, Paid: true, IssuedMonthsAgo: 24,
						Dividends: []DividendJSON{{Year: 2023, Amount: "12.50"}}},
					{Quantity: 1, Paid: true, IssuedMonthsAgo: 12},
					{Quantity: 3, Paid: true, IssuedMonthsAgo: 6},
				},
			},
			{Name: "Grace Hopper", Email: "grace@coop.example", Number: "MEM002", Quantity: 1, Paid: true},
		},
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

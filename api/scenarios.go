/*
scenarios.go - Demo profile loading

PURPOSE:
  Lets a demo or development instance reset itself and seed a cooperative
  from one of the built-in profiles. Seeding goes through the same
  workflow services the API uses, so seeded cooperatives carry a real
  audit trail and real allocated numbers.

SEEDING TIMELINE:
  Profiles describe relative history ("a certificate issued 18 months
  ago"). The seeder backdates member creation far enough that the initial
  certificate is the member's oldest, then issues the extra certificates
  at their declared ages. Payments land on the issue date, dividends the
  April after their year.

NUMBER EXPECTATIONS:
  A profile may declare member numbers (MEM001...). The engine still
  allocates; the seeder verifies allocation matched the declaration and
  fails the load when it did not, so a drifted profile is caught instead
  of silently renumbered.

ENDPOINTS:
  GET  /api/scenarios              List built-in profiles
  GET  /api/scenarios/current      Currently loaded profile name
  POST /api/scenarios/{name}/load  Reset, then seed from the profile
  POST /api/scenarios/reset        Reset to empty

SEE ALSO:
  - factory/profile.go: Profile schema and validation
  - factory/presets.go: The built-in profiles
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coopware/share-engine/audit"
	"github.com/coopware/share-engine/factory"
	"github.com/coopware/share-engine/ledger"
	"github.com/coopware/share-engine/members"
	"github.com/coopware/share-engine/shares"
)

// Resetter is the store capability behind scenario loads. All bundled
// stores implement it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO ENDPOINTS
// =============================================================================

// ListScenarios returns the built-in demo profiles.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	presets := factory.BuiltinProfiles()
	dtos := make([]ScenarioDTO, len(presets))
	for i, p := range presets {
		dtos[i] = ScenarioDTO{Name: p.Name, Description: p.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the name of the last loaded profile.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario": h.currentScenario})
}

// LoadScenario resets the store and seeds it from the named profile.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	presets := factory.BuiltinProfiles()
	var preset *factory.BuiltinProfile
	for i := range presets {
		if presets[i].Name == name {
			preset = &presets[i]
			break
		}
	}
	if preset == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown scenario %q", name), nil)
		return
	}

	profile, err := factory.NewProfileFactory().ParseProfile(preset.JSON)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to parse profile", err)
		return
	}

	if err := h.resetStore(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	summary, err := h.seedProfile(ctx, profile)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed profile", err)
		return
	}
	h.currentScenario = profile.Name

	h.Log.Info().
		Str("scenario", profile.Name).
		Int("members", summary.Members).
		Int("certificates", summary.Certificates).
		Msg("scenario loaded")

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "loaded",
		"scenario":     profile.Name,
		"members":      summary.Members,
		"certificates": summary.Certificates,
		"payments":     summary.Payments,
		"dividends":    summary.Dividends,
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.resetStore(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) resetStore(ctx context.Context) error {
	resetter, ok := h.Store.(Resetter)
	if !ok {
		return fmt.Errorf("store %T does not support reset", h.Store)
	}
	return resetter.Reset(ctx)
}

// =============================================================================
// PROFILE SEEDER
// =============================================================================

// SeedSummary counts what a profile load created.
type SeedSummary struct {
	Members      int
	Certificates int
	Payments     int
	Dividends    int
}

// SeedProfile applies a parsed profile to an empty store. Exported so
// cmd/server -seed shares the exact load path with the HTTP endpoint.
func (h *Handler) SeedProfile(ctx context.Context, profile *factory.Profile) (SeedSummary, error) {
	return h.seedProfile(ctx, profile)
}

func (h *Handler) seedProfile(ctx context.Context, profile *factory.Profile) (SeedSummary, error) {
	var summary SeedSummary

	// The profile's settings govern everything seeded from it
	h.applySettings(profile.Settings)

	actor := ledger.SystemActor()
	now := time.Now()

	for i, sm := range profile.Members {
		joined := now.AddDate(0, -joinMonthsAgo(sm), 0)

		svc := h.membersAt(joined)
		member, initial, err := svc.CreateMember(ctx, actor, members.CreateInput{
			Name:     sm.Name,
			Email:    sm.Email,
			Quantity: sm.Quantity,
		})
		if err != nil {
			return summary, fmt.Errorf("member %d (%s): %w", i+1, sm.Name, err)
		}
		summary.Members++
		summary.Certificates++

		// Allocation order must reproduce the declared numbers
		if sm.Number != "" && member.MemberNumber != sm.Number {
			return summary, fmt.Errorf("member %d (%s): profile declares %s but the ledger allocated %s; declare numbers in join order starting at %s001",
				i+1, sm.Name, sm.Number, member.MemberNumber, ledger.MemberNumberPrefix)
		}

		if sm.Paid {
			if _, err := svc.RecordPayment(ctx, actor, initial.ID, initial.TotalValue(),
				"bank_transfer", seedReference(profile.Name)); err != nil {
				return summary, fmt.Errorf("member %s initial payment: %w", member.MemberNumber, err)
			}
			summary.Payments++
		}

		for j, cert := range sm.Certificates {
			issued := now.AddDate(0, -cert.IssuedMonthsAgo, 0)
			share, err := h.seedCertificate(ctx, member, cert, issued)
			if err != nil {
				return summary, fmt.Errorf("member %s certificate %d: %w", member.MemberNumber, j+1, err)
			}
			summary.Certificates++

			if cert.Paid {
				if _, err := h.membersAt(issued).RecordPayment(ctx, actor, share.ID, share.TotalValue(),
					"bank_transfer", seedReference(profile.Name)); err != nil {
					return summary, fmt.Errorf("certificate %s payment: %w", share.CertificateNumber, err)
				}
				summary.Payments++
			}

			for _, div := range cert.Dividends {
				declared := time.Date(div.Year+1, time.April, 1, 9, 0, 0, 0, time.UTC)
				if _, err := h.membersAt(declared).DeclareDividend(ctx, actor, share.ID, div.Year, div.Amount); err != nil {
					return summary, fmt.Errorf("certificate %s dividend %d: %w", share.CertificateNumber, div.Year, err)
				}
				summary.Dividends++
			}
		}

		if sm.Suspended {
			if _, err := h.Members.Suspend(ctx, actor, member.ID, "seeded as suspended"); err != nil {
				return summary, fmt.Errorf("member %s suspension: %w", member.MemberNumber, err)
			}
		}
	}

	return summary, nil
}

// seedCertificate issues one backdated extra certificate under conflict
// retry, with the capacity check the real workflows apply.
func (h *Handler) seedCertificate(ctx context.Context, member *ledger.Member, cert factory.SeedCertificate, issued time.Time) (*ledger.Share, error) {
	issuer := shares.Issuer{
		Settings: h.Settings,
		Now:      func() time.Time { return issued },
	}
	denomination := h.Settings.Denomination()

	var share *ledger.Share
	err := ledger.WithConflictRetry(ctx, h.Store, nil, func(st ledger.Store) error {
		if err := issuer.EnsureCapacity(ctx, st, member.ID, cert.Quantity); err != nil {
			return err
		}
		issuedShare, err := issuer.Issue(ctx, st, shares.IssueInput{
			MemberID:     member.ID,
			Quantity:     cert.Quantity,
			NominalValue: denomination,
			Value:        denomination,
			Notes:        "Seeded certificate",
		})
		if err != nil {
			return err
		}
		share = issuedShare
		return nil
	})
	if err != nil {
		return nil, err
	}

	entry := audit.NewEntry(ledger.SystemActor(), ledger.AuditCreate, ledger.EntityShare, string(share.ID),
		fmt.Sprintf("certificate %s, %d shares (seeded)", share.CertificateNumber, share.Quantity))
	entry.Changes = ledger.ChangeSet{}.
		Change("certificate_number", "", share.CertificateNumber).
		Change("quantity", "", fmt.Sprintf("%d", share.Quantity))
	h.Audit.Record(ctx, entry)

	return share, nil
}

// membersAt copies the member service with its clock pinned, so seeded
// history lands on the dates the profile describes.
func (h *Handler) membersAt(t time.Time) *members.Service {
	svc := *h.Members
	svc.Now = func() time.Time { return t }
	return &svc
}

// joinMonthsAgo picks how far back a seeded member joined: before their
// oldest extra certificate, or a year ago when they hold none.
func joinMonthsAgo(sm factory.SeedMember) int {
	months := 12
	for _, cert := range sm.Certificates {
		if cert.IssuedMonthsAgo+6 > months {
			months = cert.IssuedMonthsAgo + 6
		}
	}
	return months
}

func seedReference(profile string) string {
	return "seed:" + profile
}

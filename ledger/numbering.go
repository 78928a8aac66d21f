/*
numbering.go - Sequential business-number generation

PURPOSE:
  Produces the next certificate number ("CERT" + digits) and member
  number ("MEM" + digits). Numbers are sequential over the highest
  existing numeric suffix, zero-padded to at least three digits, and
  widen naturally past 999 (CERT999 -> CERT1000).

ALGORITHM:
  Scan every existing number, parse the numeric suffix of each value
  matching prefix + 3-or-more digits (malformed values such as "INVALID"
  are ignored), take the maximum (0 if none), add one.

CONCURRENCY:
  Generation alone cannot be race-free: two callers may compute the same
  next number from a stale scan. Uniqueness comes from the store's unique
  index plus the bounded retry loop in retry.go, which re-runs the whole
  transaction (and therefore a fresh scan) whenever an insert loses the
  race.

SEE ALSO:
  - retry.go: WithConflictRetry wrapping generation + insert
  - store.go: CertificateNumbers / MemberNumbers scan methods
*/
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	// CertificatePrefix starts every certificate number.
	CertificatePrefix = "CERT"

	// MemberNumberPrefix starts every member number.
	MemberNumberPrefix = "MEM"

	// numberWidth is the minimum digit count; larger values keep their
	// natural width.
	numberWidth = 3
)

// ParseNumber extracts the numeric suffix of s when it matches
// prefix + 3-or-more digits. Anything else (wrong prefix, short suffix,
// non-digits, overflow) reports ok false and is ignored by callers.
func ParseNumber(s, prefix string) (int, bool) {
	if !strings.HasPrefix(s, prefix) {
		return 0, false
	}
	digits := s[len(prefix):]
	if len(digits) < numberWidth {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FormatNumber renders prefix + n zero-padded to at least three digits.
func FormatNumber(prefix string, n int) string {
	return fmt.Sprintf("%s%0*d", prefix, numberWidth, n)
}

// NextNumber computes one past the highest numeric suffix among existing
// values matching the prefix scheme. With no matching values the first
// number is prefix + "001".
func NextNumber(existing []string, prefix string) string {
	max := 0
	for _, s := range existing {
		if n, ok := ParseNumber(s, prefix); ok && n > max {
			max = n
		}
	}
	return FormatNumber(prefix, max+1)
}

// NextCertificateNumber scans all certificates and returns the next
// number in sequence. Call inside the transaction that will insert it.
func NextCertificateNumber(ctx context.Context, shares ShareStore) (string, error) {
	numbers, err := shares.CertificateNumbers(ctx)
	if err != nil {
		return "", fmt.Errorf("scan certificate numbers: %w", err)
	}
	return NextNumber(numbers, CertificatePrefix), nil
}

// NextMemberNumber scans all members and returns the next number in
// sequence. Call inside the transaction that will insert it.
func NextMemberNumber(ctx context.Context, members MemberStore) (string, error) {
	numbers, err := members.MemberNumbers(ctx)
	if err != nil {
		return "", fmt.Errorf("scan member numbers: %w", err)
	}
	return NextNumber(numbers, MemberNumberPrefix), nil
}

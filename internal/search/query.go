// Package search implements instant stock search: query normalization,
// cache-aside lookup, provider fan-out and result ranking.
package search

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/stockscope/searchd/internal/domain"
)

// ErrInvalidQuery marks malformed input. It is the only client-facing error
// besides AllProvidersFailed; everything else is absorbed internally.
var ErrInvalidQuery = errors.New("invalid query")

const maxQueryLength = 64

var (
	isinPattern   = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)
	wknPattern    = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,4}$`)
)

// Normalize trims, validates and classifies a raw query string.
// Pure function; no side effects. Re-normalizing a normalized key is
// idempotent: classification depends only on shape, and the key casing
// rules are stable under repetition.
func Normalize(raw string) (domain.Query, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.Query{}, fmt.Errorf("%w: empty input", ErrInvalidQuery)
	}
	if len(trimmed) > maxQueryLength {
		return domain.Query{}, fmt.Errorf("%w: input exceeds %d characters", ErrInvalidQuery, maxQueryLength)
	}

	upper := strings.ToUpper(trimmed)

	switch {
	case IsISIN(upper):
		return domain.Query{Raw: trimmed, Kind: domain.KindISIN, Key: upper}, nil
	case isWKN(upper, trimmed):
		return domain.Query{Raw: trimmed, Kind: domain.KindWKN, Key: upper}, nil
	case isSymbol(trimmed):
		return domain.Query{Raw: trimmed, Kind: domain.KindSymbol, Key: upper}, nil
	default:
		// Name lookups are fuzzy; their keys live in lowercase so they can
		// never shadow identifier keys in the cache.
		return domain.Query{Raw: trimmed, Kind: domain.KindName, Key: strings.ToLower(trimmed)}, nil
	}
}

// IsISIN checks whether the identifier is a structurally valid ISIN:
// two-letter country code, nine alphanumerics, and a valid Luhn check digit.
func IsISIN(identifier string) bool {
	identifier = strings.TrimSpace(strings.ToUpper(identifier))
	if len(identifier) != 12 {
		return false
	}
	if !isinPattern.MatchString(identifier) {
		return false
	}
	return isinChecksumValid(identifier)
}

// isinChecksumValid applies the ISIN Luhn check: letters expand to their
// two-digit values (A=10 .. Z=35), then a standard Luhn mod-10 over the
// resulting digit string.
func isinChecksumValid(isin string) bool {
	digits := make([]int, 0, 24)
	for _, r := range isin {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		} else {
			v := int(r-'A') + 10
			digits = append(digits, v/10, v%10)
		}
	}

	sum := 0
	double := true // rightmost digit is the check digit, doubling starts left of it
	for i := len(digits) - 2; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}

	check := (10 - sum%10) % 10
	return check == digits[len(digits)-1]
}

// isWKN checks for a German 6-character securities identifier. Purely
// alphabetic lowercase input ("google") reads as a name, not a WKN, so a
// WKN match requires the input to carry a digit or be written in uppercase.
func isWKN(upper, trimmed string) bool {
	if !wknPattern.MatchString(upper) {
		return false
	}
	return strings.ContainsAny(upper, "0123456789") || trimmed == upper
}

// isSymbol checks for an exchange ticker: all-uppercase, at most 5
// characters, no spaces. Class shares like BRK.B are accepted.
func isSymbol(trimmed string) bool {
	return symbolPattern.MatchString(trimmed)
}

// CacheKey returns the key under which a query's results are cached.
// The kind prefix keeps fuzzy name keys apart from identifier keys.
func CacheKey(q domain.Query) string {
	return string(q.Kind) + ":" + q.Key
}

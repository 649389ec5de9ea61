// Package identifier canonicalizes the raw identifying strings that arrive
// on intake records (phone numbers, MRNs, short display IDs, dates of birth)
// so that two differently formatted inputs referring to the same value
// compare equal. All functions are pure; nothing here touches storage.
package identifier

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// DefaultCountryCode is prefixed to 10-digit domestic phone numbers.
const DefaultCountryCode = "1"

const (
	phoneNationalLen = 10
	mrnMinLen        = 4
	mrnMaxLen        = 20
)

// ValidationError reports a malformed identifier, naming the offending field.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// NormalizePhone canonicalizes a raw phone string to +<country><10 digits>.
// A 10-digit number is treated as domestic and prefixed with countryCode;
// an 11-digit number already starting with countryCode is kept. Anything
// else is rejected. Two inputs normalize equal iff their last 10 digits agree.
func NormalizePhone(raw, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	digits := digitsOf(raw)
	switch {
	case len(digits) == phoneNationalLen:
		return "+" + countryCode + digits, nil
	case len(digits) == phoneNationalLen+len(countryCode) && strings.HasPrefix(digits, countryCode):
		return "+" + digits, nil
	default:
		return "", &ValidationError{Field: "phone", Value: raw, Reason: "must contain 10 digits, or 11 digits starting with the country code"}
	}
}

// NormalizeMRN canonicalizes an external-system medical record number:
// upper-cased, whitespace and hyphens stripped.
func NormalizeMRN(raw string) (string, error) {
	s := stripSeparators(strings.ToUpper(raw))
	if len(s) < mrnMinLen || len(s) > mrnMaxLen {
		return "", &ValidationError{Field: "mrn", Value: raw, Reason: fmt.Sprintf("must be %d-%d alphanumeric characters", mrnMinLen, mrnMaxLen)}
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return "", &ValidationError{Field: "mrn", Value: raw, Reason: "contains non-alphanumeric characters"}
		}
	}
	return s, nil
}

// NormalizeShortID canonicalizes a short display ID. Comparison is case- and
// punctuation-insensitive; a 6-digit code is always rendered XXX-XXX.
func NormalizeShortID(raw string) (string, error) {
	s := stripSeparators(strings.ToUpper(raw))
	if s == "" {
		return "", &ValidationError{Field: "short_id", Value: raw, Reason: "empty"}
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return "", &ValidationError{Field: "short_id", Value: raw, Reason: "contains non-alphanumeric characters"}
		}
	}
	if len(s) == 6 && digitsOf(s) == s {
		return s[:3] + "-" + s[3:], nil
	}
	return s, nil
}

// dobLayouts are tried in order. Slash dates are resolved as US
// month/day ordering; all intake channels in scope are domestic.
var dobLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"02 Jan 2006",
}

// NormalizeDOB parses common date-of-birth orderings into a UTC calendar date.
func NormalizeDOB(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &ValidationError{Field: "dob", Value: raw, Reason: "empty"}
	}
	for _, layout := range dobLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() < 1900 || t.After(time.Now()) {
			return time.Time{}, &ValidationError{Field: "dob", Value: raw, Reason: "out of plausible range"}
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, &ValidationError{Field: "dob", Value: raw, Reason: "unrecognized date format"}
}

// NormalizeName lower-cases, trims and collapses internal whitespace so that
// name comparison ignores formatting differences.
func NormalizeName(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripSeparators(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '-' || r == '_' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Package model defines the ESG scorecard domain types shared by the store,
// derivation, mapping, normalization, and scoring packages.
package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// PeriodLayout is the canonical text form of a reporting period.
const PeriodLayout = "2006-01-02"

// Period is a reporting period identified by its calendar date
// (e.g. "2024-01-01"). The zero value means "no period".
//
// Periods in canonical form order lexicographically in time order.
type Period string

// ParsePeriod parses a reporting period in YYYY-MM-DD form. A trailing
// time component (RFC 3339) is accepted and dropped.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", eris.New("model: empty reporting period")
	}
	if len(s) > len(PeriodLayout) && s[len(PeriodLayout)] == 'T' {
		s = s[:len(PeriodLayout)]
	}
	t, err := time.Parse(PeriodLayout, s)
	if err != nil {
		return "", eris.Wrapf(err, "model: invalid reporting period %q", s)
	}
	return PeriodOf(t), nil
}

// MustPeriod is ParsePeriod for constants and tests. It panics on error.
func MustPeriod(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PeriodOf returns the period for the calendar date of t.
func PeriodOf(t time.Time) Period {
	return Period(t.Format(PeriodLayout))
}

// Date returns the period as a UTC midnight time. The zero period yields
// the zero time.
func (p Period) Date() time.Time {
	if p == "" {
		return time.Time{}
	}
	t, err := time.Parse(PeriodLayout, string(p))
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsZero reports whether p is the empty period.
func (p Period) IsZero() bool { return p == "" }

// Before reports whether p is strictly earlier than other.
func (p Period) Before(other Period) bool { return p < other }

func (p Period) String() string { return string(p) }

// Package util provides shared utilities: date parsing, month anchoring,
// numeric parsing and error aggregation.
package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ─── Date Parsing ─────────────────────────────────────────────────────────────

const dateLayout = "2006-01-02"

// AnchorDay is the canonical day-of-month for monthly grid points.
const AnchorDay = 15

// ParseDate parses a YYYY-MM-DD string into a time.Time (UTC midnight).
// A YYYY-MM string is accepted and resolves to the first of the month, and
// a full RFC 3339 timestamp is truncated to its date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
}

// FormatDate formats a time.Time as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// MonthAnchor returns the anchored grid date (the 15th, UTC) of t's month.
func MonthAnchor(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), AnchorDay, 0, 0, 0, 0, time.UTC)
}

// MonthGrid returns every anchored month from from's month through to's
// month inclusive. It returns nil if to precedes from.
func MonthGrid(from, to time.Time) []time.Time {
	start, end := MonthAnchor(from), MonthAnchor(to)
	if end.Before(start) {
		return nil
	}
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 1, 0) {
		out = append(out, d)
	}
	return out
}

// ─── Numeric Parsing ──────────────────────────────────────────────────────────

// ParseFloat parses a CSV numeric cell. Empty cells are an error; the
// caller decides whether that is a schema violation.
// Uses strconv.ParseFloat to avoid locale issues.
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return v, nil
}

// FormatValue formats a float64 for display, showing "." for NaN.
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ─── Error Helpers ────────────────────────────────────────────────────────────

// MultiError collects multiple errors and presents them as one.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}

func (m *MultiError) Error() string {
	msgs := make([]string, len(m.Errors))
	for i, e := range m.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

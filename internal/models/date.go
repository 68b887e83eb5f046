package models

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of the calendar day t falls on in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate accepts only strict YYYY-MM-DD input.
func ParseDate(s string) (time.Time, error) {
	if len(s) != len(DateLayout) {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", s)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

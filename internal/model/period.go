package model

import "fmt"

// Period identifies one payout week as the extracts label it: calendar year,
// month, and the week number within that month. Periods are totally ordered by
// (year, month, week); that ordering is the basis for every temporal
// computation downstream.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Week  int `json:"week"`
}

// Key returns the sortable string form, e.g. "2025-09-W4".
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d-W%d", p.Year, p.Month, p.Week)
}

// Less reports whether p precedes o chronologically.
func (p Period) Less(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	if p.Month != o.Month {
		return p.Month < o.Month
	}
	return p.Week < o.Week
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0 && p.Week == 0
}

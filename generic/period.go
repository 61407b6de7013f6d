package generic

import "time"

// =============================================================================
// PERIOD - The aggregation window of a closing
// =============================================================================

// Period is an inclusive range of calendar days.
//
// Examples:
//   - Month to date for 2024-05-17: 2024-05-01 .. 2024-05-17
//   - A single day: 2024-05-01 .. 2024-05-01
type Period struct {
	Start Date
	End   Date
}

// NewPeriod validates that start is not after end.
func NewPeriod(start, end Date) (Period, error) {
	if start.IsZero() || end.IsZero() {
		return Period{}, &ValidationError{Field: "period", Message: "start and end dates are required"}
	}
	if end.Before(start) {
		return Period{}, &ValidationError{Field: "period", Message: "end date is before start date"}
	}
	return Period{Start: start, End: end}, nil
}

// MonthToDate returns the period from the first day of d's month through d.
func MonthToDate(d Date) Period {
	return Period{Start: d.StartOfMonth(), End: d}
}

// Bounds returns the half-open instant range [Start 00:00, End+1d 00:00).
func (p Period) Bounds() (from, to time.Time) {
	return p.Start.Start(), p.End.End()
}

// Contains returns true if the instant falls on a day of the period.
func (p Period) Contains(t time.Time) bool {
	from, to := p.Bounds()
	return !t.Before(from) && t.Before(to)
}

// Days returns the number of calendar days in the period.
func (p Period) Days() int {
	return int(p.End.Time.Sub(p.Start.Time).Hours()/24) + 1
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

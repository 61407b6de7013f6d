package generic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE - Calendar day (closings are keyed by day, not by instant)
// =============================================================================

// DateLayout is the wire and storage format of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar day normalized to UTC midnight.
type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(field, s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, &ValidationError{Field: field, Message: "date is required"}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, &ValidationError{Field: field, Message: "invalid date format (use YYYY-MM-DD)"}
	}
	return DateOf(t), nil
}

// MustDate parses s and panics on failure. Intended for fixtures and tests.
func MustDate(s string) Date {
	d, err := ParseDate("date", s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// StartOfMonth returns the first day of d's month.
func (d Date) StartOfMonth() Date { return NewDate(d.Time.Year(), d.Time.Month(), 1) }

// Start is the first instant of the day.
func (d Date) Start() time.Time { return d.Time }

// End is the first instant of the following day (exclusive bound).
func (d Date) End() time.Time { return d.Time.AddDate(0, 0, 1) }

func (d Date) String() string { return d.Time.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &ValidationError{Field: "date", Message: "date must be a string"}
	}
	parsed, err := ParseDate("date", s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// CLOCK TIME - Time of day for scheduled shift windows
// =============================================================================

// ClockTime is a time of day expressed in minutes after midnight.
type ClockTime int

const minutesPerDay = 24 * 60

// ParseClockTime parses an HH:MM string.
func ParseClockTime(field, s string) (ClockTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, &ValidationError{Field: field, Message: "invalid time format (use HH:MM)"}
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

// ClockTimeOf returns the time of day of t in UTC.
func ClockTimeOf(t time.Time) ClockTime {
	t = t.UTC()
	return ClockTime(t.Hour()*60 + t.Minute())
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Within reports whether c falls in [start, end). Windows where end is not
// after start wrap past midnight.
func (c ClockTime) Within(start, end ClockTime) bool {
	if start == end {
		return true
	}
	if start < end {
		return c >= start && c < end
	}
	return c >= start || c < end
}

func (c ClockTime) Valid() bool { return c >= 0 && c < minutesPerDay }

package generic

import (
	"strings"
	"time"
)

// =============================================================================
// SHIFT - Operating period clock state
// =============================================================================

// Shift is a named operating period with a scheduled daily window and the
// actual clock-in/clock-out instants of its current run.
type Shift struct {
	ID             ShiftID
	Name           string
	ScheduledStart ClockTime
	ScheduledEnd   ClockTime
	ActualStart    *time.Time
	ActualEnd      *time.Time
}

func (s *Shift) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if !s.ScheduledStart.Valid() || !s.ScheduledEnd.Valid() {
		return &ValidationError{Field: "scheduled", Message: "scheduled times must be within the day"}
	}
	return nil
}

// ClockedIn reports whether the shift has started and not ended.
func (s *Shift) ClockedIn() bool {
	return s.ActualStart != nil && s.ActualEnd == nil
}

// Scheduled reports whether at's time of day falls in the scheduled window.
func (s *Shift) Scheduled(at time.Time) bool {
	return ClockTimeOf(at).Within(s.ScheduledStart, s.ScheduledEnd)
}

package domain

import (
	"fmt"
	"time"
)

// RecurrenceRule describes when a template produces occurrences.
type RecurrenceRule struct {
	Frequency Frequency
	Interval  int

	// Weekdays is used by weekly rules.
	Weekdays []time.Weekday
	// DayOfMonth is used by monthly rules (1..31).
	DayOfMonth int

	StartDate time.Time
	EndDate   *time.Time
}

// Validate reports why a rule cannot be evaluated. All failures wrap
// ErrInvalidRecurrenceRule.
func (r RecurrenceRule) Validate() error {
	if _, err := NewFrequency(string(r.Frequency)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecurrenceRule, err)
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidRecurrenceRule, ErrIntervalTooSmall)
	}
	if r.StartDate.IsZero() {
		return fmt.Errorf("%w: %w", ErrInvalidRecurrenceRule, ErrStartDateRequired)
	}
	if r.EndDate != nil && AsDate(*r.EndDate).Before(AsDate(r.StartDate)) {
		return fmt.Errorf("%w: %w", ErrInvalidRecurrenceRule, ErrEndBeforeStart)
	}

	switch r.Frequency {
	case FrequencyWeekly:
		if len(r.Weekdays) == 0 {
			return fmt.Errorf("%w: %w", ErrInvalidRecurrenceRule, ErrWeekdaysRequired)
		}
		for _, d := range r.Weekdays {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("%w: weekday %d", ErrInvalidRecurrenceRule, d)
			}
		}
	case FrequencyMonthly:
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return fmt.Errorf("%w: %w", ErrInvalidRecurrenceRule, ErrDayOfMonthOutOfRange)
		}
	}
	return nil
}

// Covers reports whether date falls within [StartDate, EndDate].
func (r RecurrenceRule) Covers(date time.Time) bool {
	date = AsDate(date)
	if date.Before(AsDate(r.StartDate)) {
		return false
	}
	return r.EndDate == nil || !date.After(AsDate(*r.EndDate))
}

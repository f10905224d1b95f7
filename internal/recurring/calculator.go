package recurring

import (
	"iter"
	"time"

	"github.com/rezkam/opsflow/internal/domain"
)

// PatternCalculator enumerates the dates matched by one recurrence frequency.
type PatternCalculator interface {
	// Between yields, in ascending order, every date in [lo, hi] the rule's
	// pattern matches. Callers guarantee lo >= rule.StartDate and a valid rule.
	Between(rule domain.RecurrenceRule, lo, hi time.Time) iter.Seq[time.Time]
}

// GetCalculator returns the calculator for the given frequency, or nil.
func GetCalculator(freq domain.Frequency) PatternCalculator {
	switch freq {
	case domain.FrequencyDaily:
		return &DailyCalculator{}
	case domain.FrequencyWeekly:
		return &WeeklyCalculator{}
	case domain.FrequencyMonthly:
		return &MonthlyCalculator{}
	default:
		return nil
	}
}

// Occurrences yields the occurrence dates of rule in (fromExclusive, toInclusive],
// clipped to [StartDate, EndDate]. The sequence is strictly ascending, finite
// and restartable. An invalid rule yields nothing; use rule.Validate to learn why.
func Occurrences(rule domain.RecurrenceRule, fromExclusive, toInclusive time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if rule.Validate() != nil {
			return
		}
		calc := GetCalculator(rule.Frequency)
		if calc == nil {
			return
		}

		rule.StartDate = domain.AsDate(rule.StartDate)
		lo := domain.AddDays(domain.AsDate(fromExclusive), 1)
		if lo.Before(rule.StartDate) {
			lo = rule.StartDate
		}
		hi := domain.AsDate(toInclusive)
		if rule.EndDate != nil {
			end := domain.AsDate(*rule.EndDate)
			if end.Before(hi) {
				hi = end
			}
		}
		if lo.After(hi) {
			return
		}

		for date := range calc.Between(rule, lo, hi) {
			if !yield(date) {
				return
			}
		}
	}
}

// Collect materializes Occurrences into a slice.
func Collect(rule domain.RecurrenceRule, fromExclusive, toInclusive time.Time) []time.Time {
	var dates []time.Time
	for date := range Occurrences(rule, fromExclusive, toInclusive) {
		dates = append(dates, date)
	}
	return dates
}

// Count returns the number of occurrences without materializing them.
func Count(rule domain.RecurrenceRule, fromExclusive, toInclusive time.Time) int {
	n := 0
	for range Occurrences(rule, fromExclusive, toInclusive) {
		n++
	}
	return n
}

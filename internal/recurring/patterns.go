package recurring

import (
	"iter"
	"slices"
	"time"

	"github.com/rezkam/opsflow/internal/domain"
)

// ceilMultiple rounds n (>= 0) up to the next multiple of step.
func ceilMultiple(n, step int) int {
	if n <= 0 {
		return 0
	}
	return (n + step - 1) / step * step
}

// DailyCalculator matches every Interval-th day from StartDate.
type DailyCalculator struct{}

func (c *DailyCalculator) Between(rule domain.RecurrenceRule, lo, hi time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		offset := ceilMultiple(domain.DaysBetween(rule.StartDate, lo), rule.Interval)
		for current := domain.AddDays(rule.StartDate, offset); !current.After(hi); current = domain.AddDays(current, rule.Interval) {
			if !yield(current) {
				return
			}
		}
	}
}

// WeeklyCalculator matches the listed weekdays of every Interval-th week.
// Weeks start on Monday; week zero is the week containing StartDate.
type WeeklyCalculator struct{}

// mondayOf returns the Monday on or before date.
func mondayOf(date time.Time) time.Time {
	shift := (int(date.Weekday()) + 6) % 7
	return domain.AddDays(date, -shift)
}

// weekdayOffsets converts weekdays to sorted, unique day offsets from Monday.
func weekdayOffsets(days []time.Weekday) []int {
	offsets := make([]int, 0, len(days))
	for _, d := range days {
		offsets = append(offsets, (int(d)+6)%7)
	}
	slices.Sort(offsets)
	return slices.Compact(offsets)
}

func (c *WeeklyCalculator) Between(rule domain.RecurrenceRule, lo, hi time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		anchor := mondayOf(rule.StartDate)
		offsets := weekdayOffsets(rule.Weekdays)

		week := ceilMultiple(domain.DaysBetween(anchor, lo)/7, rule.Interval)
		for {
			weekStart := domain.AddDays(anchor, 7*week)
			if weekStart.After(hi) {
				return
			}
			for _, off := range offsets {
				current := domain.AddDays(weekStart, off)
				if current.Before(lo) {
					continue
				}
				if current.After(hi) {
					return
				}
				if !yield(current) {
					return
				}
			}
			week += rule.Interval
		}
	}
}

// MonthlyCalculator matches DayOfMonth of every Interval-th month from the
// StartDate's month. Months without that day are skipped, never rolled over.
type MonthlyCalculator struct{}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (c *MonthlyCalculator) Between(rule domain.RecurrenceRule, lo, hi time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		startYear, startMonth := rule.StartDate.Year(), rule.StartDate.Month()
		elapsed := (lo.Year()-startYear)*12 + int(lo.Month()-startMonth)

		for k := ceilMultiple(elapsed, rule.Interval); ; k += rule.Interval {
			first := domain.Date(startYear, startMonth+time.Month(k), 1)
			if first.After(hi) {
				return
			}
			if rule.DayOfMonth > daysIn(first.Year(), first.Month()) {
				continue
			}
			current := domain.Date(first.Year(), first.Month(), rule.DayOfMonth)
			if current.Before(lo) {
				continue
			}
			if current.After(hi) {
				return
			}
			if !yield(current) {
				return
			}
		}
	}
}

// Package calendar resolves partial day/month hints against a reference
// date. Every function that depends on "today" takes it as a parameter so
// callers stay reproducible and tests never touch the wall clock.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Locale selects a month-name table.
type Locale string

const (
	LocaleEnglish Locale = "en"
	LocaleItalian Locale = "it"
)

var monthNames = map[Locale]map[string]time.Month{
	LocaleEnglish: {
		"jan": time.January, "feb": time.February, "mar": time.March,
		"apr": time.April, "may": time.May, "jun": time.June,
		"jul": time.July, "aug": time.August, "sep": time.September,
		"oct": time.October, "nov": time.November, "dec": time.December,
	},
	LocaleItalian: {
		"gen": time.January, "feb": time.February, "mar": time.March,
		"apr": time.April, "mag": time.May, "giu": time.June,
		"lug": time.July, "ago": time.August, "set": time.September,
		"ott": time.October, "nov": time.November, "dic": time.December,
	},
}

// Date builds a calendar date at UTC midnight.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// PlusDays returns t moved by n calendar days.
func PlusDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// MonthLength returns the number of days in t's month. Day 1 plus 31 days
// always lands in the following month; stepping back by that day-of-month
// gives the last day without branching on leap years.
func MonthLength(t time.Time) int {
	following := Date(t.Year(), t.Month(), 1).AddDate(0, 0, 31)
	return following.AddDate(0, 0, -following.Day()).Day()
}

// MonthsBefore returns the date n months before t, clamping the day to the
// length of the resulting month, so Oct 31 minus 8 months is Feb 28 (or 29),
// never an invalid Feb 31.
func MonthsBefore(t time.Time, n int) time.Time {
	d := DateOf(t)
	for i := 0; i < n; i++ {
		d = Date(d.Year(), d.Month(), 1).AddDate(0, 0, -1)
	}
	day := t.Day()
	if max := MonthLength(d); day > max {
		day = max
	}
	return Date(d.Year(), d.Month(), day)
}

// ResolveDay returns the most recent date, not after today, with the given
// day-of-month: today's month when today's day is already >= day, the
// previous month otherwise. A day the target month does not have is an
// error.
func ResolveDay(today time.Time, day int) (time.Time, error) {
	if day < 1 {
		return time.Time{}, fmt.Errorf("day out of range: %d", day)
	}
	if today.Day() >= day {
		return Date(today.Year(), today.Month(), day), nil
	}
	prev := Date(today.Year(), today.Month(), 1).AddDate(0, 0, -1)
	if day > MonthLength(prev) {
		return time.Time{}, fmt.Errorf("no day %d in %s %d", day, prev.Month(), prev.Year())
	}
	return Date(prev.Year(), prev.Month(), day), nil
}

// ResolveDayMonth returns the given day/month in the current year, or in
// the previous year when the current-year date would be in the future. It
// never steps back more than one year.
func ResolveDayMonth(today time.Time, day, month int) (time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("month out of range: %d", month)
	}
	if day < 1 || day > MonthLength(Date(today.Year(), time.Month(month), 1)) {
		return time.Time{}, fmt.Errorf("no day %d in %s %d", day, time.Month(month), today.Year())
	}
	d := Date(today.Year(), time.Month(month), day)
	if d.After(DateOf(today)) {
		d = Date(d.Year()-1, time.Month(month), day)
		// Feb 29 normalizes to Mar 1 when the previous year is not a leap
		// year. That date never existed, so the hint is invalid.
		if d.Month() != time.Month(month) || d.Day() != day {
			return time.Time{}, fmt.Errorf("no day %d in %s %d", day, time.Month(month), d.Year())
		}
	}
	return d, nil
}

// MonthFromName resolves a month name or 3+-letter abbreviation in the
// given locale. Only the first three letters are inspected, case
// insensitively.
func MonthFromName(loc Locale, s string) (time.Month, bool) {
	if len(s) < 3 {
		return 0, false
	}
	m, ok := monthNames[loc][strings.ToLower(s[:3])]
	return m, ok
}

// MonthFromPrefix resolves a month token in either locale, plus the
// relative tokens "cur"/"att" (current month) and "pre" (previous month).
// Three-letter collisions between the locales (mar, apr, feb, nov) name
// the same month in both, so the overlap is harmless.
func MonthFromPrefix(today time.Time, s string) (time.Month, bool) {
	if len(s) < 3 {
		return 0, false
	}
	switch strings.ToLower(s[:3]) {
	case "cur", "att":
		return today.Month(), true
	case "pre":
		return MonthsBefore(today, 1).Month(), true
	}
	if m, ok := MonthFromName(LocaleEnglish, s); ok {
		return m, true
	}
	return MonthFromName(LocaleItalian, s)
}

// YearMonthBounds returns the first and last day of the given month.
func YearMonthBounds(year int, month time.Month) (start, end time.Time) {
	start = Date(year, month, 1)
	end = Date(year, month, MonthLength(start))
	return start, end
}

// DatesInYearMonth lists every date of the given month in order.
func DatesInYearMonth(year int, month time.Month) []time.Time {
	n := MonthLength(Date(year, month, 1))
	dates := make([]time.Time, 0, n)
	for day := 1; day <= n; day++ {
		dates = append(dates, Date(year, month, day))
	}
	return dates
}

package payments

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/ManuelReschke/ClubDues/app/models"
)

const periodLayout = "2006-01"

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// IsValidPeriod accepts YYYY-MM months and the registration period.
func IsValidPeriod(period string) bool {
	return period == models.PeriodRegistration || periodPattern.MatchString(period)
}

func IsRegistration(period string) bool {
	return period == models.PeriodRegistration
}

// PeriodOf formats the month containing t.
func PeriodOf(t time.Time) string {
	return t.Format(periodLayout)
}

func parseMonth(period string) (int, time.Month, error) {
	if !periodPattern.MatchString(period) {
		return 0, 0, fmt.Errorf("invalid monthly period %q", period)
	}
	year, _ := strconv.Atoi(period[:4])
	month, _ := strconv.Atoi(period[5:])
	return year, time.Month(month), nil
}

func lastDayOfMonth(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// DueDate returns midnight of min(dueDay, last day of the period's month).
// dueDay values below 1 are treated as 1.
func DueDate(period string, dueDay int, loc *time.Location) (time.Time, error) {
	year, month, err := parseMonth(period)
	if err != nil {
		return time.Time{}, err
	}
	if dueDay < 1 {
		dueDay = 1
	}
	if last := lastDayOfMonth(year, month, loc); dueDay > last {
		dueDay = last
	}
	return time.Date(year, month, dueDay, 0, 0, 0, 0, loc), nil
}

// MonthlyPeriods lists every month from the month of from through the month
// of to, inclusive. It is empty when from is after to.
func MonthlyPeriods(from, to time.Time) []string {
	start := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	var out []string
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		out = append(out, m.Format(periodLayout))
	}
	return out
}

// startOfDay truncates t to midnight in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DaysOverdue counts whole calendar days from due to today, never negative.
func DaysOverdue(due, today time.Time, loc *time.Location) int {
	d := startOfDay(today, loc).Sub(startOfDay(due, loc))
	if d <= 0 {
		return 0
	}
	// Round to absorb DST shifts of one hour.
	return int((d + 12*time.Hour) / (24 * time.Hour))
}

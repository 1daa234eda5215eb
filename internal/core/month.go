package core

import (
	"fmt"
	"time"
)

const monthKeyLayout = "2006-01"

// MonthKey identifies a calendar month. Its String form ("2024-03") scopes
// budgets and windows expense aggregation.
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthKeyOf returns the month containing t in t's own location.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// ParseMonthKey parses a strict "YYYY-MM" key.
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse(monthKeyLayout, s)
	if err != nil || t.Format(monthKeyLayout) != s {
		return MonthKey{}, ErrInvalidMonthKey
	}
	return MonthKeyOf(t), nil
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

func (k MonthKey) IsZero() bool {
	return k.Year == 0 && k.Month == 0
}

// Next returns the following calendar month.
func (k MonthKey) Next() MonthKey {
	return MonthKeyOf(k.Start(time.UTC).AddDate(0, 1, 0))
}

// Start returns midnight of the first day of the month in loc.
func (k MonthKey) Start(loc *time.Location) time.Time {
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, loc)
}

// MonthResolver is the single source of "now" for ledger operations. Callers
// resolve the month once per operation and pass the key down to every query.
// The zero value uses the process's local clock.
type MonthResolver struct {
	now func() time.Time
}

func NewMonthResolver(now func() time.Time) MonthResolver {
	return MonthResolver{now: now}
}

// Now returns the current time in the local zone.
func (r MonthResolver) Now() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now().Local()
}

// Current returns the month key of Now.
func (r MonthResolver) Current() MonthKey {
	return MonthKeyOf(r.Now())
}


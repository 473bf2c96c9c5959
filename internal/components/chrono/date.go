package chrono

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day, it carries no time of day and no zone so that day
// arithmetic is never affected by daylight saving transitions.
type Date struct {
	t time.Time
}

// NewDate returns the given calendar day, out of range values are normalized
// the same way time.Date normalizes them.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t as observed in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

var parseLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	dateLayout,
}

// ParseDate accepts an ISO-8601 date or timestamp (and the space separated
// variants a rails app renders) and returns its calendar day.
func ParseDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	for _, layout := range parseLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return DateOf(parsed), nil
		}
	}
	return Date{}, fmt.Errorf("parse date: unrecognized format %q", value)
}

func (d Date) Year() int {
	return d.t.Year()
}

func (d Date) Month() time.Month {
	return d.t.Month()
}

func (d Date) Day() int {
	return d.t.Day()
}

func (d Date) Weekday() time.Weekday {
	return d.t.Weekday()
}

func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return d.t
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.t.Before(other.t)
}

// DaysUntil returns the amount of whole days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.t.Sub(d.t).Hours() / 24)
}

// String formats the date as YYYY-MM-DD, this is also the format the remote
// forms accept.
func (d Date) String() string {
	return d.t.Format(dateLayout)
}

// Advance returns the date `days` calendar days after d, month and year
// rollovers (including leap days) are handled by the calendar.
func Advance(d Date, days int) Date {
	return Date{t: d.t.AddDate(0, 0, days)}
}

// AdjustToWeekday moves d forward one day at a time until it falls on
// `target`. A date already on `target` is returned unchanged.
func AdjustToWeekday(d Date, target time.Weekday) Date {
	for i := 0; i < 7; i++ {
		if d.Weekday() == target {
			return d
		}
		d = Advance(d, 1)
	}
	// unreachable, every weekday occurs within 7 consecutive days
	return d
}

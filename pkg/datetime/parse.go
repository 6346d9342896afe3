// Package datetime provides date and time utility functions.
package datetime

import (
	"fmt"
	"time"

	"github.com/iwvelando/equity-waterfall/pkg/constants"
)

const (
	// DateLayout is the format expected for round dates and is also the output
	// date format.
	DateLayout = constants.DateLayout

	day = 24 * time.Hour
)

// MustParseTime parses a date string using the given layout and panics on error.
// This is intended for use in tests where the date string is known to be valid.
func MustParseTime(layout, dateStr string) time.Time {
	t, err := time.Parse(layout, dateStr)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseDate parses a round date. Full RFC 3339 timestamps are accepted as well
// as plain dates.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err == nil {
		return t, nil
	}
	if ts, tsErr := time.Parse(time.RFC3339, date); tsErr == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: expected layout %s", date, DateLayout)
}

// FormatDate renders a time as a round date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// MeanTime returns the average of the given instants. It returns the zero time
// and false when times is empty.
func MeanTime(times []time.Time) (time.Time, bool) {
	if len(times) == 0 {
		return time.Time{}, false
	}
	var sum float64
	for _, t := range times {
		sum += float64(t.UnixMilli())
	}
	return time.UnixMilli(int64(sum / float64(len(times)))).UTC(), true
}

// YearsBetween returns the number of years elapsed from start to end using
// 365.25-day years. The result is negative when end precedes start.
func YearsBetween(start, end time.Time) float64 {
	return end.Sub(start).Hours() / (constants.DaysPerYear * day.Hours())
}

package database

import (
	"fmt"
	"time"
)

const (
	// DayLayout is the analysis_day format.
	DayLayout = "2006-01-02"
	// AnalysisDateLayout is the run timestamp format, in the reference timezone.
	AnalysisDateLayout = "2006-01-02 15:04:05"
)

// FormatAnalysisDate renders a run timestamp for storage.
func FormatAnalysisDate(t time.Time) string {
	return t.Format(AnalysisDateLayout)
}

// AnalysisDay returns the YYYY-MM-DD day of a run timestamp.
func AnalysisDay(t time.Time) string {
	return t.Format(DayLayout)
}

// ParseDay validates a YYYY-MM-DD day.
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", day)
	}
	return t, nil
}

// TrailingDays returns the first and last day of the n-day window ending on
// the day of now.
func TrailingDays(now time.Time, n int) (start, end string) {
	if n < 1 {
		n = 1
	}
	end = now.Format(DayLayout)
	start = now.AddDate(0, 0, -(n - 1)).Format(DayLayout)
	return start, end
}

// FormatDayDisplay formats a day for human-readable display, e.g. "Jun 10, 2024".
func FormatDayDisplay(day string) string {
	d, err := time.Parse(DayLayout, day)
	if err != nil {
		return day
	}
	return d.Format("Jan 02, 2006")
}

package core

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date used for week endings.
const DateLayout = "2006-01-02"

var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// IsSaturday reports whether the week ending falls on a Saturday.
func IsSaturday(weekEnding string) bool {
	t, err := ParseDate(weekEnding)
	return err == nil && t.Weekday() == time.Saturday
}

// WeekEndingFor returns the Saturday closing the week that starts on sunday.
func WeekEndingFor(sunday string) (string, error) {
	t, err := ParseDate(sunday)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, 6).Format(DateLayout), nil
}

// WeekDates returns the seven days Sunday..Saturday of a record. sunday wins
// when set, otherwise the week is counted back from weekEnding.
func WeekDates(weekEnding, sunday string) ([7]time.Time, error) {
	var out [7]time.Time
	var start time.Time
	if strings.TrimSpace(sunday) != "" {
		t, err := ParseDate(sunday)
		if err != nil {
			return out, err
		}
		start = t
	} else {
		t, err := ParseDate(weekEnding)
		if err != nil {
			return out, err
		}
		start = t.AddDate(0, 0, -6)
	}
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out, nil
}

// ExcelSerial converts a date to the 1900 date system serial number.
func ExcelSerial(t time.Time) float64 {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return float64(d.Sub(excelEpoch).Hours() / 24)
}

// FileBaseName builds "Week M-D through M-D - purpose" for exported files.
func FileBaseName(rec ExpenseRecord) string {
	bp := strings.TrimSpace(rec.BusinessPurpose)
	days, err := WeekDates(rec.WeekEnding, rec.SundayDate)
	if err != nil {
		if bp != "" {
			return bp
		}
		return "Week"
	}
	base := fmt.Sprintf("Week %d-%d through %d-%d",
		int(days[0].Month()), days[0].Day(), int(days[6].Month()), days[6].Day())
	if bp != "" {
		base += " - " + bp
	}
	return base
}

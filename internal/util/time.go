package util

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// ISODate is the layout every stored date uses.
const ISODate = "2006-01-02"

// DateWindow is an inclusive range of calendar days.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls on or between the window's first and last day.
func (w DateWindow) Contains(d time.Time) bool {
	day := truncateDay(d)
	return !day.Before(truncateDay(w.Start)) && !day.After(truncateDay(w.End))
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseISODate parses a YYYY-MM-DD string as a UTC calendar day.
func ParseISODate(s string) (time.Time, error) {
	return time.Parse(ISODate, s)
}

// RecentCutoff returns the first day of a window covering the last days
// calendar days before now, as seen on the Oslo calendar where the extracts
// are dated.
func RecentCutoff(now time.Time, days int) string {
	loc, err := time.LoadLocation("Europe/Oslo")
	if err != nil {
		log.Errorf("Failed to load location 'Europe/Oslo': %v. Falling back to UTC.", err)
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -days).
		Format(ISODate)
}

// NextDay returns the calendar day after an ISO date.
func NextDay(iso string) (string, error) {
	t, err := ParseISODate(iso)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, 1).Format(ISODate), nil
}

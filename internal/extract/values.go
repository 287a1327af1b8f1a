package extract

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Spreadsheet serial days count from this date.
var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

const (
	minSerialDay = 20000
	maxSerialDay = 80000
)

// freeFormLayouts are tried in order for dates that are not purely numeric.
// Slash dates read month first.
var freeFormLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"02.01.2006",
	"2.1.2006",
	"02.01.06",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

func blank(s string) bool {
	return s == "" || strings.EqualFold(s, "nan")
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// ParseDate normalizes a date cell to ISO YYYY-MM-DD. Accepted encodings are
// YYYYMMDD, YYMMDD (20YY), a spreadsheet serial day number, a bare YYYY
// (January 1st), or a free-form date. Anything else yields nil.
func ParseDate(raw string) *string {
	s := strings.TrimSpace(raw)
	if blank(s) {
		return nil
	}

	if allDigits(s) {
		switch len(s) {
		case 8:
			return civilDate(atoi(s[0:4]), atoi(s[4:6]), atoi(s[6:8]))
		case 6:
			return civilDate(2000+atoi(s[0:2]), atoi(s[2:4]), atoi(s[4:6]))
		}
		n, err := strconv.Atoi(s)
		if err == nil && n >= minSerialDay && n <= maxSerialDay {
			iso := serialEpoch.AddDate(0, 0, n).Format("2006-01-02")
			return &iso
		}
		if len(s) == 4 {
			return civilDate(n, 1, 1)
		}
		return nil
	}

	for _, layout := range freeFormLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			iso := t.Format("2006-01-02")
			return &iso
		}
	}
	return nil
}

// civilDate rejects out-of-range parts instead of letting time.Date
// normalize them (20240230 must not become March 1st).
func civilDate(year, month, day int) *string {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return nil
	}
	iso := t.Format("2006-01-02")
	return &iso
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// ParseNumber reads a locale-formatted number: a comma is taken as the
// decimal separator. Blank, "nan" and unparseable cells yield nil.
func ParseNumber(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if blank(s) {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// ParseFlag reads an integer flag that may be encoded as "1.0". Values
// outside the int64 range yield nil.
func ParseFlag(raw string) *int64 {
	f := ParseNumber(raw)
	if f == nil || *f < math.MinInt64 || *f >= -math.MinInt64 {
		return nil
	}
	n := int64(*f)
	return &n
}

// ParseText trims a text cell; blank and "nan" yield nil.
func ParseText(raw string) *string {
	s := strings.TrimSpace(raw)
	if blank(s) {
		return nil
	}
	return &s
}

package models

import (
	"encoding/json"
	"strings"
	"time"
)

// FlexibleDate is a custom time type that can unmarshal both RFC3339 and "YYYY-MM-DD" formats
type FlexibleDate struct {
	time.Time
}

func parseFlexible(s string) (time.Time, error) {
	// Try parsing as RFC3339 full timestamp first
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (f *FlexibleDate) UnmarshalJSON(b []byte) error {
	t, err := parseFlexible(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	f.Time = t
	return nil
}

// UnmarshalParam lets gin bind query and form values.
func (f *FlexibleDate) UnmarshalParam(param string) error {
	t, err := parseFlexible(strings.TrimSpace(param))
	if err != nil {
		return err
	}
	f.Time = t
	return nil
}

// MarshalJSON implements the json.Marshaler interface.
func (f FlexibleDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.ISO())
}

// ISO returns the date part as YYYY-MM-DD, the form dates take in the store.
func (f FlexibleDate) ISO() string {
	return f.Time.Format("2006-01-02")
}

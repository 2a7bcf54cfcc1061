package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// CivilTimeLayout is the wire and storage format for issue timestamps.
const CivilTimeLayout = "2006-01-02 15:04:05"

// CivilTime is a wall-clock timestamp with second precision. It is kept in
// the service's configured location and never normalized to UTC.
type CivilTime struct {
	time.Time
}

// NewCivilTime truncates t to whole seconds in loc.
func NewCivilTime(t time.Time, loc *time.Location) CivilTime {
	return CivilTime{Time: t.In(loc).Truncate(time.Second)}
}

// ParseCivilTime parses a stored timestamp as wall-clock time in loc.
func ParseCivilTime(s string, loc *time.Location) (CivilTime, error) {
	t, err := time.ParseInLocation(CivilTimeLayout, s, loc)
	if err != nil {
		return CivilTime{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return CivilTime{Time: t}, nil
}

// String formats the timestamp in CivilTimeLayout.
func (c CivilTime) String() string {
	return c.Format(CivilTimeLayout)
}

func (c CivilTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *CivilTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse(CivilTimeLayout, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	c.Time = t
	return nil
}

package availability

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ISOLayout is the wire format of a calendar date.
const ISOLayout = "2006-01-02"

// Date is a calendar day with no time-of-day component.
// The zero value means "unset".
type Date struct {
	t time.Time // always UTC midnight
}

// NewDate builds a date; out-of-range values are normalized the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Date())
}

// Today returns the current calendar day in loc (local time when loc is nil).
func Today(loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(time.Now().In(loc))
}

// ParseDate parses YYYY-MM-DD. Anything after a 'T' is ignored so backend
// timestamps like 2024-03-11T00:00:00Z can be passed as-is.
// An empty string yields the zero Date and no error.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(ISOLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q; expected YYYY-MM-DD", s)
	}
	return Date{t: t}, nil
}

func (d Date) IsZero() bool { return d.t.IsZero() }

// String returns the ISO form, or "" for an unset date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(ISOLayout)
}

func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool  { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool  { return d.t.Equal(other.t) }

func (d Date) Weekday() time.Weekday { return d.t.Weekday() }

// IsWeekend reports whether d is a Saturday or Sunday.
func (d Date) IsWeekend() bool {
	wd := d.t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// AddYears moves d by n calendar years. Feb 29 rolls over to Mar 1.
func (d Date) AddYears(n int) Date { return Date{t: d.t.AddDate(n, 0, 0)} }

// Time returns d as midnight UTC.
func (d Date) Time() time.Time { return d.t }

// DaysBetween returns the absolute number of whole days between a and b.
func DaysBetween(a, b Date) int {
	diff := b.t.Sub(a.t)
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour))
}

// MarshalJSON encodes an unset date as null.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts null, "" or an ISO date (optionally with a time suffix).
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

package lexical

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NoZone is the location of values whose lexical form carried no
// timezone. Printing such a value emits no timezone either.
var NoZone = time.FixedZone("NoZone", 0)

// Calendar identifies one of the date/time primitive types.
type Calendar int

const (
	DateTime Calendar = iota
	Date
	Time
	GYear
	GYearMonth
	GMonth
	GMonthDay
	GDay
)

var calendarLayouts = [...]string{
	DateTime:   "2006-01-02T15:04:05",
	Date:       "2006-01-02",
	Time:       "15:04:05",
	GYear:      "2006",
	GYearMonth: "2006-01",
	GMonth:     "--01",
	GMonthDay:  "--01-02",
	GDay:       "---02",
}

var calendarNames = [...]string{
	DateTime:   "dateTime",
	Date:       "date",
	Time:       "time",
	GYear:      "gYear",
	GYearMonth: "gYearMonth",
	GMonth:     "gMonth",
	GMonthDay:  "gMonthDay",
	GDay:       "gDay",
}

func (c Calendar) String() string {
	return calendarNames[c]
}

// ParseCalendar parses a lexical value of the given calendar type. Values
// without a timezone are returned in NoZone.
func ParseCalendar(c Calendar, s string) (time.Time, error) {
	v := Normalize(Collapse, s)
	if v == "" {
		return time.Time{}, fmt.Errorf("invalid %s: %w", c, ErrEmpty)
	}
	main, loc, err := splitZone(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", c, s, err)
	}
	// time.Parse accepts a fraction after the seconds field even though
	// the layout does not carry one.
	t, err := time.Parse(calendarLayouts[c], main)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %q", c, s)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc), nil
}

// PrintCalendar returns the lexical form of t for the given calendar type.
func PrintCalendar(c Calendar, t time.Time) string {
	layout := calendarLayouts[c]
	if c == DateTime || c == Time {
		layout += ".999999999"
	}
	return t.Format(layout) + printZone(t)
}

func splitZone(v string) (string, *time.Location, error) {
	if strings.HasSuffix(v, "Z") {
		return v[:len(v)-1], time.UTC, nil
	}
	if n := len(v); n > 6 && (v[n-6] == '+' || v[n-6] == '-') && v[n-3] == ':' {
		hh, err1 := strconv.Atoi(v[n-5 : n-3])
		mm, err2 := strconv.Atoi(v[n-2:])
		if err1 != nil || err2 != nil || hh > 14 || mm > 59 {
			return "", nil, fmt.Errorf("bad timezone %q", v[n-6:])
		}
		offset := hh*3600 + mm*60
		if v[n-6] == '-' {
			offset = -offset
		}
		if offset == 0 {
			return v[:n-6], time.UTC, nil
		}
		return v[:n-6], time.FixedZone("", offset), nil
	}
	return v, NoZone, nil
}

func printZone(t time.Time) string {
	if t.Location() == NoZone {
		return ""
	}
	_, offset := t.Zone()
	if offset == 0 {
		return "Z"
	}
	sign := byte('+')
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%c%02d:%02d", sign, offset/3600, offset%3600/60)
}

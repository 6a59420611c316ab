// Package timeutil provides date parsing and formatting for portal records.
// The portal serves dates in several shapes (plain dates, SQL-style datetimes,
// RFC 3339 with offsets, unix timestamps); everything is normalized to
// time.Time in the school's timezone.
package timeutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// AlmatyTZ is the Almaty timezone (UTC+5, no DST).
// Kazakhstan abolished DST in 2005, so this is constant year-round.
var AlmatyTZ = time.FixedZone("Asia/Almaty", 5*60*60)

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format without seconds.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDateTimeSeconds is the storage format used for date attributes.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
	// FormatRussianDate is the Russian date format (DD.MM.YYYY).
	FormatRussianDate = "02.01.2006"
	// FormatRussianDateTime is the Russian datetime format.
	FormatRussianDateTime = "02.01.2006 15:04"
)

// parseLayouts are tried in order by Parse.
var parseLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	FormatDateTimeSeconds,
	FormatDateTime,
	FormatDate,
	FormatRussianDateTime,
	FormatRussianDate,
}

// LoadLocation resolves a timezone name. Empty and "Asia/Almaty" fall back to
// AlmatyTZ so the binary works without tzdata installed.
func LoadLocation(name string) (*time.Location, error) {
	switch name {
	case "", AlmatyTZ.String():
		if loc, err := time.LoadLocation("Asia/Almaty"); err == nil {
			return loc, nil
		}
		return AlmatyTZ, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

// Now returns the current time in the location.
func Now(loc *time.Location) time.Time {
	if loc == nil {
		loc = AlmatyTZ
	}
	return time.Now().In(loc)
}

// Parse converts a raw attribute value into a time. Strings are tried against
// the known layouts, values without an offset are read in loc. Numbers are
// unix seconds.
func Parse(value any, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = AlmatyTZ
	}

	switch v := value.(type) {
	case time.Time:
		return v.In(loc), nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return v.In(loc), nil
	case string:
		return ParseString(v, loc)
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		secs, err := cast.ToInt64E(v)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(secs, 0).In(loc), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %T as a date", value)
}

// ParseString parses s with the first layout that accepts it.
func ParseString(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Format renders t in loc with the layout.
func Format(t time.Time, layout string, loc *time.Location) string {
	if loc == nil {
		loc = AlmatyTZ
	}
	return t.In(loc).Format(layout)
}

// ValidLayout reports whether layout contains at least one time directive and
// survives a format/parse round trip.
func ValidLayout(layout string) bool {
	if layout == "" {
		return false
	}
	ref := time.Date(2019, time.November, 23, 8, 7, 9, 0, time.UTC)
	formatted := ref.Format(layout)
	if formatted == layout {
		return false
	}
	_, err := time.Parse(layout, formatted)
	return err == nil
}

// StartOfDay returns the start of the day (00:00:00) in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = AlmatyTZ
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// IsSameDay checks if two times are on the same day in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	return StartOfDay(t1, loc).Equal(StartOfDay(t2, loc))
}

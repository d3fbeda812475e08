package raid

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Resolver turns human-entered, timezone-relative schedules into absolute
// instants. It is stateless apart from the alias table.
type Resolver struct {
	aliases map[string]string
}

// NewResolver builds a resolver with a short-name -> IANA zone table
// (e.g. "eastern" -> "America/New_York"). Keys are matched
// case-insensitively.
func NewResolver(aliases map[string]string) *Resolver {
	m := make(map[string]string, len(aliases))
	for k, v := range aliases {
		m[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &Resolver{aliases: m}
}

// Zone resolves a timezone reference: the alias table is consulted first,
// unresolved strings pass through to the zone database.
func (r *Resolver) Zone(ref string) (*time.Location, error) {
	name := strings.TrimSpace(ref)
	if full, ok := r.aliases[strings.ToLower(name)]; ok {
		name = full
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, ref)
	}
	return loc, nil
}

// Resolve computes the next occurrence of weekday at the given clock time
// in the referenced zone, strictly after now.
//
// If combining the clock time with today's date in the target zone lands
// on the requested weekday and is still in the future, that candidate is
// the result. Otherwise the next calendar occurrence of the weekday wins;
// this also covers "today, but the time already elapsed".
func (r *Resolver) Resolve(weekday, clockText, tzRef string, now time.Time) (time.Time, error) {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(weekday))]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidWeekday, weekday)
	}

	hour, minute, err := ParseClock(clockText)
	if err != nil {
		return time.Time{}, err
	}

	loc, err := r.Zone(tzRef)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)

	if candidate.Weekday() == wd && candidate.After(now) {
		return candidate, nil
	}

	days := int(wd-candidate.Weekday()+7) % 7
	if days == 0 {
		days = 7
	}
	return time.Date(local.Year(), local.Month(), local.Day()+days, hour, minute, 0, 0, loc), nil
}

// ParseClock parses a time-of-day like "10pm", "10:15pm", "1:15am" or
// "22:00". Values that would spill past the current day (hour 24 and up)
// are rejected rather than silently shifting the date.
func ParseClock(s string) (hour, minute int, err error) {
	raw := s
	s = strings.ToLower(strings.TrimSpace(s))

	meridiem := ""
	switch {
	case strings.HasSuffix(s, "am"):
		meridiem = "am"
		s = strings.TrimSpace(strings.TrimSuffix(s, "am"))
	case strings.HasSuffix(s, "pm"):
		meridiem = "pm"
		s = strings.TrimSpace(strings.TrimSuffix(s, "pm"))
	}

	hs, ms := s, "0"
	if i := strings.IndexByte(s, ':'); i >= 0 {
		hs, ms = s[:i], s[i+1:]
	}

	h, herr := strconv.Atoi(hs)
	m, merr := strconv.Atoi(ms)
	if hs == "" || herr != nil || merr != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}

	switch meridiem {
	case "":
		if h < 0 || h > 23 {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
		}
	default:
		if h < 1 || h > 12 {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
		}
		if h == 12 {
			h = 0
		}
		if meridiem == "pm" {
			h += 12
		}
	}
	return h, m, nil
}

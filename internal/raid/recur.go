package raid

import (
	"time"

	"github.com/teambition/rrule-go"
)

// NextRun advances a recurrence instant by one period, anchored on the
// previous instant (never on the wall clock) so drift cannot accumulate.
func NextRun(freq Frequency, prev time.Time) time.Time {
	var opt rrule.ROption
	switch freq {
	case FreqDaily:
		opt = rrule.ROption{Freq: rrule.DAILY, Interval: 1, Dtstart: prev}
	case FreqBiweekly:
		opt = rrule.ROption{Freq: rrule.WEEKLY, Interval: 2, Dtstart: prev}
	default:
		opt = rrule.ROption{Freq: rrule.WEEKLY, Interval: 1, Dtstart: prev}
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return prev.Add(freq.Period())
	}
	next := r.After(prev, false)
	if next.IsZero() {
		return prev.Add(freq.Period())
	}
	return next
}

// ParseFrequency maps user input to a recurrence cadence.
func ParseFrequency(s string) (Frequency, bool) {
	switch Frequency(s) {
	case FreqDaily, FreqWeekly, FreqBiweekly:
		return Frequency(s), true
	}
	return "", false
}

// Expand materializes a fresh EventRecord from a rule at its NextRunAt.
// The event id is assigned by the caller once the summary is posted.
func Expand(rule RecurrenceRule, now time.Time) EventRecord {
	return EventRecord{
		GuildID:       rule.GuildID,
		ChannelID:     rule.ChannelID,
		HostID:        rule.HostID,
		StartAt:       rule.NextRunAt,
		TimezoneLabel: rule.TimezoneLabel,
		Description:   rule.Description,
		Active:        true,
		RecurrenceID:  rule.ID,
		CreatedAt:     now,
	}
}

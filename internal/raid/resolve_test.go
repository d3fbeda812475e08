package raid

import (
	"errors"
	"testing"
	"time"
)

var testAliases = map[string]string{
	"eastern":  "America/New_York",
	"central":  "America/Chicago",
	"mountain": "America/Denver",
	"pacific":  "America/Los_Angeles",
}

func TestResolveNextFriday(t *testing.T) {
	t.Parallel()
	r := NewResolver(testAliases)
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	// Monday morning.
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, ny)

	got, err := r.Resolve("friday", "10pm", "eastern", now)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	want := time.Date(2024, 1, 5, 22, 0, 0, 0, ny)
	if !got.Equal(want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveSameDayFuture(t *testing.T) {
	t.Parallel()
	r := NewResolver(testAliases)
	ny, _ := time.LoadLocation("America/New_York")
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, ny) // Monday 09:00

	got, err := r.Resolve("monday", "10:30pm", "eastern", now)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	want := time.Date(2024, 1, 1, 22, 30, 0, 0, ny)
	if !got.Equal(want) {
		t.Fatalf("Resolve = %v, want %v (same-day future)", got, want)
	}
}

func TestResolveSameDayElapsed(t *testing.T) {
	t.Parallel()
	r := NewResolver(testAliases)
	ny, _ := time.LoadLocation("America/New_York")
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, ny) // Monday 09:00

	// Monday 08:00 already elapsed; must land on the NEXT Monday.
	got, err := r.Resolve("monday", "8am", "eastern", now)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	want := time.Date(2024, 1, 8, 8, 0, 0, 0, ny)
	if !got.Equal(want) {
		t.Fatalf("Resolve = %v, want %v (next week)", got, want)
	}
}

func TestResolveAlwaysFutureAndOnWeekday(t *testing.T) {
	t.Parallel()
	r := NewResolver(testAliases)
	ny, _ := time.LoadLocation("America/New_York")
	now := time.Date(2024, 6, 12, 17, 45, 0, 0, ny) // Wednesday

	days := []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
	clocks := []string{"12am", "6:30am", "12pm", "17:45", "11:59pm"}
	for _, day := range days {
		for _, clock := range clocks {
			got, err := r.Resolve(day, clock, "eastern", now)
			if err != nil {
				t.Fatalf("Resolve(%s, %s) error: %v", day, clock, err)
			}
			if !got.After(now) {
				t.Fatalf("Resolve(%s, %s) = %v, not after now %v", day, clock, got, now)
			}
			if wd := got.In(ny).Weekday(); wd != weekdays[day] {
				t.Fatalf("Resolve(%s, %s) landed on %v", day, clock, wd)
			}
			if got.Sub(now) > 7*24*time.Hour {
				t.Fatalf("Resolve(%s, %s) = %v, more than a week out", day, clock, got)
			}
		}
	}
}

func TestResolveFullZoneName(t *testing.T) {
	t.Parallel()
	r := NewResolver(testAliases)
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	got, err := r.Resolve("tuesday", "1:15am", "America/New_York", now)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	ny, _ := time.LoadLocation("America/New_York")
	if got.In(ny).Hour() != 1 || got.In(ny).Minute() != 15 {
		t.Fatalf("unexpected local time: %v", got.In(ny))
	}
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()
	r := NewResolver(testAliases)
	now := time.Now()

	tests := []struct {
		name    string
		day     string
		clock   string
		tz      string
		wantErr error
	}{
		{name: "bad weekday", day: "someday", clock: "10pm", tz: "eastern", wantErr: ErrInvalidWeekday},
		{name: "bad zone", day: "friday", clock: "10pm", tz: "atlantis", wantErr: ErrInvalidTimezone},
		{name: "bad clock", day: "friday", clock: "25pm", tz: "eastern", wantErr: ErrInvalidTime},
		{name: "cross-day spill", day: "friday", clock: "24:30", tz: "eastern", wantErr: ErrInvalidTime},
		{name: "garbage clock", day: "friday", clock: "soonish", tz: "eastern", wantErr: ErrInvalidTime},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := r.Resolve(tt.day, tt.clock, tt.tz, now)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseClockVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		h, m int
	}{
		{raw: "10pm", h: 22},
		{raw: "10:15pm", h: 22, m: 15},
		{raw: "1:15am", h: 1, m: 15},
		{raw: "12am", h: 0},
		{raw: "12pm", h: 12},
		{raw: "22:00", h: 22},
		{raw: "0:05", h: 0, m: 5},
		{raw: " 9 PM ", h: 21},
	}
	for _, tt := range tests {
		h, m, err := ParseClock(tt.raw)
		if err != nil {
			t.Fatalf("ParseClock(%q) error: %v", tt.raw, err)
		}
		if h != tt.h || m != tt.m {
			t.Fatalf("ParseClock(%q) = %d:%02d, want %d:%02d", tt.raw, h, m, tt.h, tt.m)
		}
	}
}

func TestParseClockInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "13pm", "0am", "10:60", "24:00", "pm", "ten"} {
		if _, _, err := ParseClock(raw); err == nil {
			t.Fatalf("ParseClock(%q): expected error", raw)
		}
	}
}

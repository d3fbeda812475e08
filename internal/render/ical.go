package render

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"raidbot/internal/raid"
)

// defaultRaidLength pads exported VEVENTs; the bot only tracks start
// instants.
const defaultRaidLength = 3 * time.Hour

// ExportICS serializes the given events as an iCalendar feed, one VEVENT
// per raid, so raiders can subscribe from their own calendar apps.
func ExportICS(events []raid.EventRecord, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//raidbot//schedule//EN")

	for _, ev := range events {
		ve := cal.AddEvent(fmt.Sprintf("%s@raidbot", ev.ID))
		ve.SetDtStampTime(now)
		ve.SetStartAt(ev.StartAt)
		ve.SetEndAt(ev.StartAt.Add(defaultRaidLength))
		ve.SetSummary(ev.Description)
		ve.SetDescription(fmt.Sprintf("Signed up: %d", len(ev.Participants)))
	}
	return cal.Serialize()
}

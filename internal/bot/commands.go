package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"raidbot/internal/dialog"
	"raidbot/internal/raid"
	"raidbot/internal/render"
	"raidbot/internal/transport"
	logx "raidbot/pkg/logx"
)

const helpText = `Commands:
  rsvp <weekday> <time> <timezone> <description> — schedule a raid
  rsvp — schedule a raid interactively
  rsvp alias set <name> | alias clear — set your roster name
  rsvp cancel <event-id> — close sign-ups early (host/admin)
  rsvp recur <event-id> <daily|weekly|biweekly> — repeat a raid (host/admin)
  rsvp recur stop <event-id> — stop repeating (host/admin)
  rsvp invite-msg <text> — set the reminder text (admin)
  rsvp export — calendar file of upcoming raids
Reply "cancel" to abort any question.`

func (r *Router) cmdRSVP(ctx context.Context, cmd *transport.Command, args []string) {
	if len(args) == 0 {
		go r.createEventDialogue(ctx, cmd)
		return
	}
	switch strings.ToLower(args[0]) {
	case "help":
		r.reply(ctx, cmd, helpText)
	case "alias":
		r.cmdAlias(ctx, cmd, args[1:])
	case "invite-msg":
		r.cmdInviteMsg(ctx, cmd, args[1:])
	case "cancel":
		r.cmdCancel(ctx, cmd, args[1:])
	case "recur":
		r.cmdRecur(ctx, cmd, args[1:])
	case "export":
		r.cmdExport(ctx, cmd)
	default:
		// Bare schedule form: <weekday> <time> <timezone> <description...>
		if len(args) < 4 {
			r.reply(ctx, cmd, "Usage: rsvp <weekday> <time> <timezone> <description> — or just `rsvp` to be walked through it.")
			return
		}
		r.createEvent(ctx, cmd, args[0], args[1], args[2], strings.Join(args[3:], " "))
	}
}

func (r *Router) createEvent(ctx context.Context, cmd *transport.Command, weekday, clock, tz, desc string) {
	startAt, err := r.resolver.Resolve(weekday, clock, tz, time.Now())
	if err != nil {
		r.reply(ctx, cmd, scheduleErrorText(err))
		return
	}

	channelID := cmd.ChannelID
	if gc, ok, gerr := r.store.Guild(ctx, cmd.GuildID); gerr == nil && ok && gc.RSVPChannelID != "" {
		channelID = gc.RSVPChannelID
	}

	ev := raid.EventRecord{
		GuildID:       cmd.GuildID,
		ChannelID:     channelID,
		HostID:        cmd.FromID,
		StartAt:       startAt,
		TimezoneLabel: tz,
		Description:   desc,
		Active:        true,
		CreatedAt:     time.Now(),
	}
	msgID, err := r.msgr.PostSummary(ctx, ev)
	if err != nil {
		r.log.Error("post summary failed", logx.String("channel", channelID), logx.Err(err))
		r.reply(ctx, cmd, "Couldn't post the sign-up message. Is the bot in the sign-up channel?")
		return
	}
	ev.ID = msgID
	if err := r.store.PutEvent(ctx, ev); err != nil {
		r.log.Error("store event failed", logx.String("event", ev.ID), logx.Err(err))
		r.reply(ctx, cmd, "Something went wrong saving the raid. Try again.")
		return
	}

	r.log.Info("event created",
		logx.String("event", ev.ID),
		logx.String("host", ev.HostID),
		logx.Time("start_at", ev.StartAt))
	if channelID != cmd.ChannelID {
		r.reply(ctx, cmd, fmt.Sprintf("Scheduled %q — sign-ups posted in the raid channel.", desc))
	}
}

// createEventDialogue walks the host through the schedule one question
// at a time. Nothing persists until every answer is in; a timeout or
// "cancel" anywhere abandons the whole thing.
func (r *Router) createEventDialogue(ctx context.Context, cmd *transport.Command) {
	s, err := r.dialogs.Begin(cmd.ChannelID, cmd.FromID)
	if err != nil {
		r.reply(ctx, cmd, "Finish your current question first (or reply \"cancel\").")
		return
	}
	defer s.Close()

	var weekday, clock, tz string
	now := time.Now()

	r.reply(ctx, cmd, "What day is the raid? (e.g. friday)")
	weekday, ok := r.askValid(ctx, cmd, s, func(answer string) error {
		_, err := r.resolver.Resolve(answer, "12:00", "UTC", now)
		return err
	})
	if !ok {
		return
	}

	r.reply(ctx, cmd, "What time? (e.g. 10pm, 21:30)")
	clock, ok = r.askValid(ctx, cmd, s, func(answer string) error {
		_, _, err := raid.ParseClock(answer)
		return err
	})
	if !ok {
		return
	}

	r.reply(ctx, cmd, "Which timezone? (eastern, central, mountain, pacific, or an IANA name)")
	tz, ok = r.askValid(ctx, cmd, s, func(answer string) error {
		_, err := r.resolver.Zone(answer)
		return err
	})
	if !ok {
		return
	}

	r.reply(ctx, cmd, "What are you raiding?")
	desc, ok := r.askValid(ctx, cmd, s, func(answer string) error {
		if answer == "" {
			return errors.New("empty")
		}
		return nil
	})
	if !ok {
		return
	}

	r.createEvent(ctx, cmd, weekday, clock, tz, desc)
}

// askValid re-prompts on invalid answers and turns cancel/timeout into a
// single farewell message.
func (r *Router) askValid(ctx context.Context, cmd *transport.Command, s *dialog.Session, check func(string) error) (string, bool) {
	for {
		answer, err := s.Ask(ctx)
		switch {
		case errors.Is(err, raid.ErrUserCanceled):
			r.reply(ctx, cmd, "Okay, nothing scheduled.")
			return "", false
		case errors.Is(err, dialog.ErrTimeout):
			r.reply(ctx, cmd, "No answer — nothing scheduled.")
			return "", false
		case err != nil:
			return "", false
		}
		if cerr := check(answer); cerr != nil {
			r.reply(ctx, cmd, scheduleErrorText(cerr)+" Try again, or reply \"cancel\".")
			continue
		}
		return answer, true
	}
}

func (r *Router) cmdAlias(ctx context.Context, cmd *transport.Command, args []string) {
	if len(args) == 0 {
		r.reply(ctx, cmd, "Usage: rsvp alias set <name> — or alias clear")
		return
	}
	switch strings.ToLower(args[0]) {
	case "set":
		name := strings.TrimSpace(strings.Join(args[1:], " "))
		if name == "" {
			r.reply(ctx, cmd, "Usage: rsvp alias set <name>")
			return
		}
		if err := r.store.PutAlias(ctx, cmd.FromID, name); err != nil {
			r.log.Error("store alias failed", logx.String("user", cmd.FromID), logx.Err(err))
			return
		}
		r.reply(ctx, cmd, fmt.Sprintf("You'll appear as %q on future sign-ups.", name))
	case "clear":
		if err := r.store.DeleteAlias(ctx, cmd.FromID); err != nil {
			r.log.Error("clear alias failed", logx.String("user", cmd.FromID), logx.Err(err))
			return
		}
		r.reply(ctx, cmd, "Alias cleared.")
	default:
		r.reply(ctx, cmd, "Usage: rsvp alias set <name> — or alias clear")
	}
}

func (r *Router) cmdInviteMsg(ctx context.Context, cmd *transport.Command, args []string) {
	if !r.isAdmin(ctx, cmd.GuildID, cmd.FromID) {
		r.reply(ctx, cmd, "Only raid admins can change the reminder text.")
		return
	}
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		r.reply(ctx, cmd, "Usage: rsvp invite-msg <text>")
		return
	}
	gc, ok, err := r.store.Guild(ctx, cmd.GuildID)
	if err != nil {
		r.log.Error("load guild failed", logx.String("guild", cmd.GuildID), logx.Err(err))
		return
	}
	if !ok {
		gc = raid.GuildConfig{GuildID: cmd.GuildID}
	}
	gc.InviteMessage = text
	if err := r.store.PutGuild(ctx, gc); err != nil {
		r.log.Error("store guild failed", logx.String("guild", cmd.GuildID), logx.Err(err))
		return
	}
	r.reply(ctx, cmd, "Reminder text updated.")
}

// cmdCancel closes sign-ups early. Same terminal transition the
// scheduler runs at start time, just on demand.
func (r *Router) cmdCancel(ctx context.Context, cmd *transport.Command, args []string) {
	if len(args) != 1 {
		r.reply(ctx, cmd, "Usage: rsvp cancel <event-id>")
		return
	}
	ev, err := r.store.Event(ctx, args[0])
	if err != nil {
		r.reply(ctx, cmd, "No such raid.")
		return
	}
	if ev.HostID != cmd.FromID && !r.isAdmin(ctx, cmd.GuildID, cmd.FromID) {
		r.reply(ctx, cmd, "Only the host or a raid admin can cancel.")
		return
	}

	if err := r.msgr.LockSummary(ctx, ev); err != nil &&
		!errors.Is(err, transport.ErrNotFound) && !errors.Is(err, transport.ErrForbidden) {
		r.log.Warn("cancel: lock edit failed", logx.String("event", ev.ID), logx.Err(err))
	}
	_, _, err = r.roster.Transition(ctx, ev.ID, func(e *raid.EventRecord) bool {
		if !e.Active {
			return false
		}
		e.Active = false
		return true
	})
	if err != nil {
		r.log.Error("cancel failed", logx.String("event", ev.ID), logx.Err(err))
		return
	}
	r.log.Info("event canceled", logx.String("event", ev.ID), logx.String("by", cmd.FromID))
	r.reply(ctx, cmd, fmt.Sprintf("%q is canceled; sign-ups are closed.", ev.Description))
}

func (r *Router) cmdRecur(ctx context.Context, cmd *transport.Command, args []string) {
	if len(args) == 2 && strings.EqualFold(args[0], "stop") {
		r.cmdRecurStop(ctx, cmd, args[1])
		return
	}
	if len(args) != 2 {
		r.reply(ctx, cmd, "Usage: rsvp recur <event-id> <daily|weekly|biweekly> — or recur stop <event-id>")
		return
	}

	ev, err := r.store.Event(ctx, args[0])
	if err != nil {
		r.reply(ctx, cmd, "No such raid.")
		return
	}
	if ev.HostID != cmd.FromID && !r.isAdmin(ctx, cmd.GuildID, cmd.FromID) {
		r.reply(ctx, cmd, "Only the host or a raid admin can set recurrence.")
		return
	}
	freq, ok := raid.ParseFrequency(strings.ToLower(args[1]))
	if !ok {
		r.reply(ctx, cmd, "Frequency must be daily, weekly, or biweekly.")
		return
	}
	if _, exists, err := r.store.FindRule(ctx, ev.GuildID, ev.Description); err != nil {
		r.log.Error("find rule failed", logx.Err(err))
		return
	} else if exists {
		r.reply(ctx, cmd, fmt.Sprintf("%q already repeats. Stop it first with rsvp recur stop.", ev.Description))
		return
	}

	rule := raid.RecurrenceRule{
		ID:            uuid.NewString(),
		GuildID:       ev.GuildID,
		ChannelID:     ev.ChannelID,
		HostID:        ev.HostID,
		TimezoneLabel: ev.TimezoneLabel,
		Description:   ev.Description,
		Frequency:     freq,
		NextRunAt:     raid.NextRun(freq, ev.StartAt),
	}
	if err := r.store.PutRule(ctx, rule); err != nil {
		r.log.Error("store rule failed", logx.Err(err))
		return
	}
	r.log.Info("recurrence created",
		logx.String("rule", rule.ID),
		logx.String("event", ev.ID),
		logx.Time("next_run", rule.NextRunAt))
	r.reply(ctx, cmd, fmt.Sprintf("%q now repeats %s; next sign-up posts around its start time.", ev.Description, freq))
}

func (r *Router) cmdRecurStop(ctx context.Context, cmd *transport.Command, eventID string) {
	ev, err := r.store.Event(ctx, eventID)
	if err != nil {
		r.reply(ctx, cmd, "No such raid.")
		return
	}
	if ev.HostID != cmd.FromID && !r.isAdmin(ctx, cmd.GuildID, cmd.FromID) {
		r.reply(ctx, cmd, "Only the host or a raid admin can stop recurrence.")
		return
	}
	rule, ok, err := r.store.FindRule(ctx, ev.GuildID, ev.Description)
	if err != nil {
		r.log.Error("find rule failed", logx.Err(err))
		return
	}
	if !ok {
		r.reply(ctx, cmd, fmt.Sprintf("%q isn't repeating.", ev.Description))
		return
	}
	if err := r.store.DeleteRule(ctx, rule.ID); err != nil {
		r.log.Error("delete rule failed", logx.String("rule", rule.ID), logx.Err(err))
		return
	}
	r.log.Info("recurrence stopped", logx.String("rule", rule.ID), logx.String("by", cmd.FromID))
	r.reply(ctx, cmd, fmt.Sprintf("%q will no longer repeat. Already-posted sign-ups stay up.", ev.Description))
}

func (r *Router) cmdExport(ctx context.Context, cmd *transport.Command) {
	events, err := r.store.GuildEvents(ctx, cmd.GuildID, true)
	if err != nil {
		r.log.Error("export: list events failed", logx.Err(err))
		return
	}
	if len(events) == 0 {
		r.reply(ctx, cmd, "Nothing scheduled.")
		return
	}
	ics := render.ExportICS(events, time.Now())
	err = r.adapter.SendDocument(ctx,
		transport.ChannelRef{GuildID: cmd.GuildID, ChannelID: cmd.ChannelID},
		"raids.ics", []byte(ics), fmt.Sprintf("%d upcoming raids", len(events)))
	if err != nil {
		r.log.Warn("export: send failed", logx.Err(err))
		r.reply(ctx, cmd, "Couldn't attach the calendar file.")
	}
}

func scheduleErrorText(err error) string {
	switch {
	case errors.Is(err, raid.ErrInvalidWeekday):
		return "I don't know that day — use monday through sunday."
	case errors.Is(err, raid.ErrInvalidTime):
		return "I can't read that time — try 10pm, 9:30pm, or 21:30."
	case errors.Is(err, raid.ErrInvalidTimezone):
		return "I don't know that timezone — try eastern, central, mountain, pacific, or an IANA name like Europe/Berlin."
	default:
		return "That doesn't look right."
	}
}

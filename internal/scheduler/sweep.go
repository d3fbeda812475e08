package scheduler

import (
	"context"
	"errors"

	"raidbot/internal/eventbus"
	"raidbot/internal/raid"
	"raidbot/internal/transport"
	logx "raidbot/pkg/logx"
)

// Sweep walks every active event once and fires whichever thresholds it
// has crossed. A failing record never stops the walk; each one is
// handled in isolation so a single bad row or dead channel cannot starve
// the rest.
//
// Delivery calls happen outside the per-event lock. The reminder latches
// commit before delivery: a reminder fires at most once even when the
// send is lost, which is the cheaper failure than double-pinging every
// roster on each retry.
func (s *Service) Sweep(ctx context.Context) {
	cfg := s.snapshot()

	events, err := s.store.ActiveEvents(ctx)
	if err != nil {
		s.log.Error("sweep: list active events", logx.Err(err))
		return
	}

	for _, ev := range events {
		if err := s.sweepOne(ctx, cfg, ev); err != nil {
			s.log.Error("sweep: event failed",
				logx.String("event", ev.ID),
				logx.Time("start_at", ev.StartAt),
				logx.Err(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Service) sweepOne(ctx context.Context, cfg Config, ev raid.EventRecord) error {
	now := s.now()

	// Admin shortfall alert at start - AdminLead.
	if !ev.AdminReminderSent && !now.Before(ev.StartAt.Add(-cfg.AdminLead)) {
		latched, fresh, err := s.latch(ctx, ev.ID, func(e *raid.EventRecord) *bool { return &e.AdminReminderSent })
		if err != nil {
			return err
		}
		if latched {
			ev = fresh
			tally := raid.Tally(ev.Participants)
			if tally.Short(cfg.Minimums) {
				s.msgr.AdminAlert(ev, tally, cfg.Minimums, now)
				s.log.Info("admin shortfall alert",
					logx.String("event", ev.ID),
					logx.Int("signed_up", tally.Total))
			}
		}
	}

	// Participant reminder at start - UserLead.
	if !ev.UserReminderSent && !now.Before(ev.StartAt.Add(-cfg.UserLead)) {
		latched, fresh, err := s.latch(ctx, ev.ID, func(e *raid.EventRecord) *bool { return &e.UserReminderSent })
		if err != nil {
			return err
		}
		if latched {
			ev = fresh
			s.msgr.InviteReminder(ev, cfg.InviteMessage)
			s.log.Info("participant reminder", logx.String("event", ev.ID))
		}
	}

	// Start time reached: the event terminates either way, the edit just
	// decides which way.
	if !now.Before(ev.StartAt) {
		return s.lockEvent(ctx, ev)
	}
	return nil
}

// latch flips a reminder flag false -> true under the event lock. The
// bool reports whether this sweep won the flip; a concurrent sweep or a
// restart replay loses and stays silent.
func (s *Service) latch(ctx context.Context, eventID string, field func(*raid.EventRecord) *bool) (bool, raid.EventRecord, error) {
	ev, changed, err := s.roster.Transition(ctx, eventID, func(e *raid.EventRecord) bool {
		f := field(e)
		if *f || !e.Active {
			return false
		}
		*f = true
		return true
	})
	return changed, ev, err
}

// lockEvent closes an event whose start time has passed. The summary is
// edited into its terminal form first; if the message is gone or the bot
// lost the channel, the event is superseded instead of locked. Either
// way Active goes false.
func (s *Service) lockEvent(ctx context.Context, ev raid.EventRecord) error {
	editErr := s.msgr.LockSummary(ctx, ev)
	superseded := errors.Is(editErr, transport.ErrNotFound) || errors.Is(editErr, transport.ErrForbidden)
	if editErr != nil && !superseded {
		// Transient transport trouble: leave the event active and let the
		// next sweep retry the terminal edit.
		return editErr
	}

	_, changed, err := s.roster.Transition(ctx, ev.ID, func(e *raid.EventRecord) bool {
		if !e.Active {
			return false
		}
		e.Active = false
		return true
	})
	if err != nil {
		if errors.Is(err, raid.ErrNotFound) {
			return nil
		}
		return err
	}
	if !changed {
		return nil
	}

	typ := eventbus.TypeEventLocked
	if superseded {
		typ = eventbus.TypeEventSuperseded
		s.log.Warn("event superseded, summary unreachable",
			logx.String("event", ev.ID),
			logx.Err(editErr))
	} else {
		s.log.Info("event locked", logx.String("event", ev.ID))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: ev.ID})
	}
	// Terminal records take no further mutations; the per-event lock can go.
	s.roster.Forget(ev.ID)
	return nil
}

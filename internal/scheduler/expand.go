package scheduler

import (
	"context"

	"raidbot/internal/eventbus"
	"raidbot/internal/raid"
	logx "raidbot/pkg/logx"
)

// Expand materializes every due recurrence rule into a fresh event.
//
// A rule advances only after its summary posts successfully, so a failed
// post is retried on the next tick instead of silently skipping an
// occurrence. Occurrences more than a full period stale (the bot was
// down across one or more cadence boundaries) are skipped without
// posting; each skip still advances from the previous NextRunAt, keeping
// the cadence anchored.
func (s *Service) Expand(ctx context.Context) {
	rules, err := s.store.Rules(ctx)
	if err != nil {
		s.log.Error("expand: list rules", logx.Err(err))
		return
	}
	now := s.now()

	for _, rule := range rules {
		if rule.NextRunAt.After(now) {
			continue
		}
		if err := s.expandOne(ctx, rule); err != nil {
			s.log.Error("expand: rule failed",
				logx.String("rule", rule.ID),
				logx.String("description", rule.Description),
				logx.Err(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Service) expandOne(ctx context.Context, rule raid.RecurrenceRule) error {
	now := s.now()

	// Fast-forward occurrences the bot slept through entirely.
	skipped := 0
	for !rule.NextRunAt.Add(rule.Frequency.Period()).After(now) {
		rule.NextRunAt = raid.NextRun(rule.Frequency, rule.NextRunAt)
		skipped++
	}
	if skipped > 0 {
		s.log.Warn("expand: skipped stale occurrences",
			logx.String("rule", rule.ID),
			logx.Int("skipped", skipped))
		if err := s.store.PutRule(ctx, rule); err != nil {
			return err
		}
		if rule.NextRunAt.After(now) {
			return nil
		}
	}

	ev := raid.Expand(rule, now)
	msgID, err := s.msgr.PostSummary(ctx, ev)
	if err != nil {
		// Rule untouched; retried next tick.
		return err
	}
	ev.ID = msgID
	if err := s.store.PutEvent(ctx, ev); err != nil {
		return err
	}

	rule.NextRunAt = raid.NextRun(rule.Frequency, rule.NextRunAt)
	if err := s.store.PutRule(ctx, rule); err != nil {
		return err
	}

	s.log.Info("recurrence expanded",
		logx.String("rule", rule.ID),
		logx.String("event", ev.ID),
		logx.Time("start_at", ev.StartAt),
		logx.Time("next_run", rule.NextRunAt))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeRuleExpanded, Data: ev.ID})
	}
	return nil
}

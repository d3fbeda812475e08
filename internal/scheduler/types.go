package scheduler

import (
	"context"
	"time"

	"raidbot/internal/raid"
)

// Config controls the two timer loops. Zero durations fall back to the
// defaults below.
type Config struct {
	Enabled        bool
	SweepInterval  time.Duration // reminder/lock sweep cadence
	ExpandInterval time.Duration // recurrence expansion cadence
	AdminLead      time.Duration // admin shortfall alert, before start
	UserLead       time.Duration // participant reminder, before start
	Minimums       raid.Minimums
	InviteMessage  string
}

const (
	defaultSweepInterval  = time.Minute
	defaultExpandInterval = 10 * time.Second
	defaultAdminLead      = 2 * time.Hour
	defaultUserLead       = 15 * time.Minute
)

func (c *Config) applyDefaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.ExpandInterval <= 0 {
		c.ExpandInterval = defaultExpandInterval
	}
	if c.AdminLead <= 0 {
		c.AdminLead = defaultAdminLead
	}
	if c.UserLead <= 0 {
		c.UserLead = defaultUserLead
	}
}

// Messenger is how scheduler transitions become visible in chat. The
// alert/reminder calls are fire-and-forget: a reminder latch commits
// whether or not delivery succeeds, so they report nothing back.
// LockSummary returns its transport error because the sweep uses it to
// tell a locked event from a superseded one (summary message gone or
// unreachable).
type Messenger interface {
	PostSummary(ctx context.Context, ev raid.EventRecord) (messageID string, err error)
	LockSummary(ctx context.Context, ev raid.EventRecord) error
	AdminAlert(ev raid.EventRecord, tally raid.RoleTally, min raid.Minimums, now time.Time)
	InviteReminder(ev raid.EventRecord, invite string)
}

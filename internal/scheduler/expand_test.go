package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"raidbot/internal/raid"
	"raidbot/internal/roster"
	"raidbot/internal/storage"
	logx "raidbot/pkg/logx"
)

func newExpandFixture(t *testing.T, msgr *fakeMessenger) (*Service, *storage.Memory, *time.Time) {
	t.Helper()
	st := storage.NewMemory()
	ros := roster.New(st, nil, logx.Nop())
	svc := New(Config{Enabled: true}, st, ros, msgr, nil, logx.Nop())
	now := baseTime
	svc.now = func() time.Time { return now }
	return svc, st, &now
}

func weeklyRule(id string, next time.Time) raid.RecurrenceRule {
	return raid.RecurrenceRule{
		ID:            id,
		GuildID:       "g1",
		ChannelID:     "c1",
		HostID:        "host",
		TimezoneLabel: "eastern",
		Description:   "Onyxia",
		Frequency:     raid.FreqWeekly,
		NextRunAt:     next,
	}
}

func TestExpandDueRule(t *testing.T) {
	t.Parallel()
	msgr := &fakeMessenger{}
	svc, st, _ := newExpandFixture(t, msgr)
	ctx := context.Background()

	due := baseTime.Add(-time.Minute)
	if err := st.PutRule(ctx, weeklyRule("r1", due)); err != nil {
		t.Fatalf("put rule: %v", err)
	}

	svc.Expand(ctx)

	if len(msgr.posted) != 1 {
		t.Fatalf("want one posted summary, got %d", len(msgr.posted))
	}
	ev, err := st.Event(ctx, "msg-Onyxia")
	if err != nil {
		t.Fatalf("expanded event not stored under message id: %v", err)
	}
	if !ev.Active || ev.RecurrenceID != "r1" || !ev.StartAt.Equal(due) {
		t.Fatalf("expanded event wrong: %+v", ev)
	}

	rule, _ := st.Rule(ctx, "r1")
	if want := due.AddDate(0, 0, 7); !rule.NextRunAt.Equal(want) {
		t.Fatalf("rule advanced to %v, want %v (anchored on previous)", rule.NextRunAt, want)
	}
}

func TestExpandNotDue(t *testing.T) {
	t.Parallel()
	msgr := &fakeMessenger{}
	svc, st, _ := newExpandFixture(t, msgr)
	ctx := context.Background()

	future := baseTime.Add(time.Hour)
	if err := st.PutRule(ctx, weeklyRule("r1", future)); err != nil {
		t.Fatalf("put rule: %v", err)
	}

	svc.Expand(ctx)

	if len(msgr.posted) != 0 {
		t.Fatalf("future rule expanded early: %+v", msgr.posted)
	}
	rule, _ := st.Rule(ctx, "r1")
	if !rule.NextRunAt.Equal(future) {
		t.Fatalf("future rule advanced: %v", rule.NextRunAt)
	}
}

func TestExpandPostFailureRetries(t *testing.T) {
	t.Parallel()
	msgr := &fakeMessenger{postErr: errors.New("flood wait")}
	svc, st, _ := newExpandFixture(t, msgr)
	ctx := context.Background()

	due := baseTime.Add(-time.Minute)
	if err := st.PutRule(ctx, weeklyRule("r1", due)); err != nil {
		t.Fatalf("put rule: %v", err)
	}

	svc.Expand(ctx)

	// Post failed: no event, rule unmoved.
	if evs, _ := st.ActiveEvents(ctx); len(evs) != 0 {
		t.Fatalf("event stored despite failed post: %+v", evs)
	}
	rule, _ := st.Rule(ctx, "r1")
	if !rule.NextRunAt.Equal(due) {
		t.Fatalf("rule advanced past a failed post: %v", rule.NextRunAt)
	}

	// Transport recovers; next tick delivers the same occurrence.
	msgr.mu.Lock()
	msgr.postErr = nil
	msgr.mu.Unlock()
	svc.Expand(ctx)

	if len(msgr.posted) != 1 || !msgr.posted[0].StartAt.Equal(due) {
		t.Fatalf("retry did not deliver the missed occurrence: %+v", msgr.posted)
	}
}

func TestExpandSkipsStaleOccurrences(t *testing.T) {
	t.Parallel()
	msgr := &fakeMessenger{}
	svc, st, _ := newExpandFixture(t, msgr)
	ctx := context.Background()

	// Three weeks behind: the stale occurrences are skipped silently, the
	// one inside the current period is posted, and the anchor stays on
	// the original cadence.
	stale := baseTime.AddDate(0, 0, -21).Add(-time.Minute)
	if err := st.PutRule(ctx, weeklyRule("r1", stale)); err != nil {
		t.Fatalf("put rule: %v", err)
	}

	svc.Expand(ctx)

	if len(msgr.posted) != 1 {
		t.Fatalf("want exactly one catch-up post, got %d", len(msgr.posted))
	}
	if got := msgr.posted[0].StartAt; !got.Equal(baseTime.Add(-time.Minute)) {
		t.Fatalf("posted the wrong occurrence: %v", got)
	}
	rule, _ := st.Rule(ctx, "r1")
	if want := stale.AddDate(0, 0, 28); !rule.NextRunAt.Equal(want) {
		t.Fatalf("cadence anchor drifted: got %v, want %v", rule.NextRunAt, want)
	}
}

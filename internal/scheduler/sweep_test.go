package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"raidbot/internal/raid"
	"raidbot/internal/roster"
	"raidbot/internal/storage"
	"raidbot/internal/transport"
	logx "raidbot/pkg/logx"
)

type fakeMessenger struct {
	mu sync.Mutex

	postErr error
	posted  []raid.EventRecord

	lockErr error
	locked  []string

	adminAlerts []string
	invites     []string
}

func (f *fakeMessenger) PostSummary(_ context.Context, ev raid.EventRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", f.postErr
	}
	f.posted = append(f.posted, ev)
	return "msg-" + ev.Description, nil
}

func (f *fakeMessenger) LockSummary(_ context.Context, ev raid.EventRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockErr != nil {
		return f.lockErr
	}
	f.locked = append(f.locked, ev.ID)
	return nil
}

func (f *fakeMessenger) AdminAlert(ev raid.EventRecord, _ raid.RoleTally, _ raid.Minimums, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adminAlerts = append(f.adminAlerts, ev.ID)
}

func (f *fakeMessenger) InviteReminder(ev raid.EventRecord, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites = append(f.invites, ev.ID)
}

var baseTime = time.Date(2026, 9, 4, 20, 0, 0, 0, time.UTC)

func newSweepFixture(t *testing.T, msgr *fakeMessenger) (*Service, *storage.Memory, *time.Time) {
	t.Helper()
	st := storage.NewMemory()
	ros := roster.New(st, nil, logx.Nop())
	cfg := Config{
		Enabled:   true,
		AdminLead: 2 * time.Hour,
		UserLead:  15 * time.Minute,
		Minimums:  raid.Minimums{Tanks: 1, Healers: 1, DPS: 1, Total: 3},
	}
	svc := New(cfg, st, ros, msgr, nil, logx.Nop())
	now := baseTime
	svc.now = func() time.Time { return now }
	return svc, st, &now
}

func putEvent(t *testing.T, st *storage.Memory, ev raid.EventRecord) {
	t.Helper()
	if err := st.PutEvent(context.Background(), ev); err != nil {
		t.Fatalf("put event: %v", err)
	}
}

func eventAt(id string, start time.Time) raid.EventRecord {
	return raid.EventRecord{
		ID:          id,
		GuildID:     "g1",
		ChannelID:   "c1",
		HostID:      "host",
		StartAt:     start,
		Description: "Molten Core",
		Participants: []raid.Participant{
			{UserID: "host", Role: raid.RoleTank, Status: raid.StatusConfirmed},
		},
		Active: true,
	}
}

func TestSweepAdminAlertOnShortfall(t *testing.T) {
	t.Parallel()
	msgr := &fakeMessenger{}
	svc, st, _ := newSweepFixture(t, msgr)
	ctx := context.Background()

	// One tank only: short of every minimum except tanks.
	putEvent(t, st, eventAt("e1", baseTime.Add(90*time.Minute)))

	svc.Sweep(ctx)

	if len(msgr.adminAlerts) != 1 || msgr.adminAlerts[0] != "e1" {
		t.Fatalf("want one admin alert for e1, got %v", msgr.adminAlerts)
	}
	ev, _ := st.Event(ctx, "e1")
	if !ev.AdminReminderSent {
		t.Fatal("admin latch not persisted")
	}

	// Latch holds: a second sweep stays silent.
	svc.Sweep(ctx)
	if len(msgr.adminAlerts) != 1 {
		t.Fatalf("latch fired twice: %v", msgr.adminAlerts)
	}
}

func TestSweepAdminLatchWithoutShortfall(t *testing.T) {
	t.Parallel()
	msgr := &fakeMessenger{}
	svc, st, _ := newSweepFixture(t, msgr)
	ctx := context.Background()

	ev := eventAt("e1", baseTime.Add(time.Hour))
	ev.Participants = []raid.Participant{
		{UserID: "host", Role: raid.RoleTank, Status: raid.StatusConfirmed},
		{UserID: "u2", Role: raid.RoleHealer, Status: raid.StatusConfirmed},
		{UserID: "u3", Role: raid.RoleDPS, Status: raid.StatusConfirmed},
	}
	putEvent(t, st, ev)

	svc.Sweep(ctx)

	if len(msgr.adminAlerts) != 0 {
		t.Fatalf("full roster still alerted: %v", msgr.adminAlerts)
	}
	got, _ := st.Event(ctx, "e1")
	if !got.AdminReminderSent {
		t.Fatal("latch must commit even when no alert goes out")
	}
}

func TestSweepUserReminder(t *testing.T) {
	t.Parallel()
	msgr := &fakeMessenger{}
	svc, st, _ := newSweepFixture(t, msgr)
	ctx := context.Background()

	putEvent(t, st, eventAt("e1", baseTime.Add(10*time.Minute)))
	svc.Sweep(ctx)

	if len(msgr.invites) != 1 {
		t.Fatalf("want one invite reminder, got %v", msgr.invites)
	}
	ev, _ := st.Event(ctx, "e1")
	if !ev.UserReminderSent || !ev.AdminReminderSent {
		t.Fatalf("both latches should be set inside both windows: %+v", ev)
	}

	svc.Sweep(ctx)
	if len(msgr.invites) != 1 {
		t.Fatalf("invite latch fired twice: %v", msgr.invites)
	}
}

func TestSweepLocksAtStart(t *testing.T) {
	t.Parallel()
	msgr := &fakeMessenger{}
	svc, st, _ := newSweepFixture(t, msgr)
	ctx := context.Background()

	putEvent(t, st, eventAt("e1", baseTime.Add(-time.Second)))
	svc.Sweep(ctx)

	if len(msgr.locked) != 1 || msgr.locked[0] != "e1" {
		t.Fatalf("want lock edit for e1, got %v", msgr.locked)
	}
	ev, _ := st.Event(ctx, "e1")
	if ev.Active {
		t.Fatal("event still active after start")
	}

	// Terminal: later sweeps ignore it entirely.
	svc.Sweep(ctx)
	if len(msgr.locked) != 1 {
		t.Fatalf("locked twice: %v", msgr.locked)
	}
}

func TestSweepSupersedesWhenSummaryGone(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name string
		err  error
	}{
		{"deleted", transport.ErrNotFound},
		{"kicked", transport.ErrForbidden},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			msgr := &fakeMessenger{lockErr: tc.err}
			svc, st, _ := newSweepFixture(t, msgr)
			ctx := context.Background()

			putEvent(t, st, eventAt("e1", baseTime.Add(-time.Minute)))
			svc.Sweep(ctx)

			ev, _ := st.Event(ctx, "e1")
			if ev.Active {
				t.Fatal("unreachable summary must still terminate the event")
			}
		})
	}
}

func TestSweepTransientLockErrorRetries(t *testing.T) {
	t.Parallel()
	msgr := &fakeMessenger{lockErr: errors.New("rate limited")}
	svc, st, _ := newSweepFixture(t, msgr)
	ctx := context.Background()

	putEvent(t, st, eventAt("e1", baseTime.Add(-time.Minute)))
	svc.Sweep(ctx)

	ev, _ := st.Event(ctx, "e1")
	if !ev.Active {
		t.Fatal("transient edit failure must not terminate the event")
	}

	// Edit recovers; the next sweep finishes the lock.
	msgr.mu.Lock()
	msgr.lockErr = nil
	msgr.mu.Unlock()
	svc.Sweep(ctx)
	ev, _ = st.Event(ctx, "e1")
	if ev.Active {
		t.Fatal("event not locked after edit recovered")
	}
}

func TestSweepIsolatesFailingRecords(t *testing.T) {
	t.Parallel()
	msgr := &fakeMessenger{lockErr: errors.New("boom")}
	svc, st, _ := newSweepFixture(t, msgr)
	ctx := context.Background()

	// First record fails to lock; second is in the reminder window.
	bad := eventAt("bad", baseTime.Add(-time.Minute))
	bad.AdminReminderSent = true
	bad.UserReminderSent = true
	putEvent(t, st, bad)
	putEvent(t, st, eventAt("good", baseTime.Add(10*time.Minute)))

	svc.Sweep(ctx)

	if len(msgr.invites) != 1 || msgr.invites[0] != "good" {
		t.Fatalf("failure on one record starved another: %v", msgr.invites)
	}
}

func TestSweepFarFutureUntouched(t *testing.T) {
	t.Parallel()
	msgr := &fakeMessenger{}
	svc, st, _ := newSweepFixture(t, msgr)
	ctx := context.Background()

	putEvent(t, st, eventAt("e1", baseTime.Add(48*time.Hour)))
	svc.Sweep(ctx)

	ev, _ := st.Event(ctx, "e1")
	if ev.AdminReminderSent || ev.UserReminderSent || !ev.Active {
		t.Fatalf("event outside every window was touched: %+v", ev)
	}
	if len(msgr.adminAlerts)+len(msgr.invites)+len(msgr.locked) != 0 {
		t.Fatal("messenger called for a far-future event")
	}
}

package bot

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"raidbot/internal/dialog"
	"raidbot/internal/notify"
	"raidbot/internal/raid"
	"raidbot/internal/render"
	"raidbot/internal/roster"
	"raidbot/internal/storage"
	"raidbot/internal/transport"
	logx "raidbot/pkg/logx"
)

type sentMsg struct {
	channel string
	text    string
	buttons int
}

type fakeAdapter struct {
	mu      sync.Mutex
	nextID  int
	sent    []sentMsg
	edits   []sentMsg
	docs    []string
	roles   map[string][]string // userID -> roles
	editErr error
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChannelRef, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	n := 0
	if opt != nil {
		n = len(opt.Buttons)
	}
	f.sent = append(f.sent, sentMsg{channel: to.ChannelID, text: text, buttons: n})
	return transport.MessageRef{ChannelID: to.ChannelID, MessageID: strconv.Itoa(f.nextID)}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	n := 0
	if opt != nil {
		n = len(opt.Buttons)
	}
	f.edits = append(f.edits, sentMsg{channel: ref.ChannelID, text: text, buttons: n})
	return nil
}

func (f *fakeAdapter) DeleteMessage(context.Context, transport.MessageRef) error { return nil }

func (f *fakeAdapter) SendDocument(_ context.Context, _ transport.ChannelRef, name string, _ []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, name)
	return nil
}

func (f *fakeAdapter) MemberRoles(_ context.Context, _, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[userID], nil
}

func (f *fakeAdapter) lastSent() (sentMsg, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMsg{}, false
	}
	return f.sent[len(f.sent)-1], true
}

type fixture struct {
	router  *Router
	adapter *fakeAdapter
	store   *storage.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storage.NewMemory()
	ad := &fakeAdapter{roles: map[string][]string{}}
	ros := roster.New(st, nil, logx.Nop())
	resolver := raid.NewResolver(map[string]string{"eastern": "America/New_York"})
	renderer := render.New(resolver, map[string]string{
		"🛡": "tank", "💚": "healer", "⚔": "dps",
		"❓": "tentative", "🕒": "late", "✖": "cancel",
	})
	queue := notify.New(ad, notify.Config{}, logx.Nop())
	msgr := NewMessenger(ad, renderer, queue, st, logx.Nop())
	router := NewRouter(Config{
		Prefix: "?",
		Owners: []string{"owner"},
		Symbols: map[string]string{
			"🛡": "tank", "💚": "healer", "⚔": "dps",
			"❓": "tentative", "🕒": "late", "✖": "cancel",
		},
	}, st, ros, resolver, msgr, dialog.NewManager(time.Second), ad, logx.Nop())
	return &fixture{router: router, adapter: ad, store: st}
}

func (fx *fixture) seedEvent(t *testing.T, id, hostID string, active bool) raid.EventRecord {
	t.Helper()
	ev := raid.EventRecord{
		ID:            id,
		GuildID:       "g1",
		ChannelID:     "c1",
		HostID:        hostID,
		StartAt:       time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second),
		TimezoneLabel: "eastern",
		Description:   "Molten Core",
		Active:        active,
	}
	if err := fx.store.PutEvent(context.Background(), ev); err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return ev
}

func command(from, text string) transport.Update {
	return transport.Update{Kind: transport.UpdateCommand, Command: &transport.Command{
		GuildID: "g1", ChannelID: "c1", FromID: from, FromDisplay: "Name-" + from, Text: text,
	}}
}

func reaction(from, messageID, token string) transport.Update {
	return transport.Update{Kind: transport.UpdateReaction, Reaction: &transport.Reaction{
		MessageID: messageID, GuildID: "g1", ChannelID: "c1",
		FromID: from, FromDisplay: "Name-" + from, Token: token,
	}}
}

func TestReactionSignsUpAndRepaints(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()
	fx.seedEvent(t, "m1", "host", true)

	fx.router.Handle(ctx, reaction("u1", "m1", "💚"))

	ev, err := fx.store.Event(ctx, "m1")
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	p, ok := ev.Participant("u1")
	if !ok || p.Role != raid.RoleHealer {
		t.Fatalf("signup not applied: %+v ok=%v", p, ok)
	}
	if len(fx.adapter.edits) != 1 || !strings.Contains(fx.adapter.edits[0].text, "Name-u1") {
		t.Fatalf("summary not repainted: %+v", fx.adapter.edits)
	}
}

func TestReactionUnknownTokenDropped(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()
	fx.seedEvent(t, "m1", "host", true)

	fx.router.Handle(ctx, reaction("u1", "m1", "🎉"))

	ev, _ := fx.store.Event(ctx, "m1")
	if len(ev.Participants) != 0 {
		t.Fatalf("unknown token reached the roster: %+v", ev.Participants)
	}
}

func TestReactionOnClosedEventSilent(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()
	fx.seedEvent(t, "m1", "host", false)

	fx.router.Handle(ctx, reaction("u1", "m1", "⚔"))

	if len(fx.adapter.sent)+len(fx.adapter.edits) != 0 {
		t.Fatal("dead-event reaction produced output")
	}
}

func TestBareScheduleCommand(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	fx.router.Handle(ctx, command("host", "?rsvp friday 10pm eastern Molten Core"))

	msg, ok := fx.adapter.lastSent()
	if !ok || !strings.Contains(msg.text, "Molten Core") {
		t.Fatalf("no summary posted: %+v", msg)
	}
	if msg.buttons != 6 {
		t.Fatalf("summary posted without the sign-up keyboard: %+v", msg)
	}
	evs, _ := fx.store.ActiveEvents(ctx)
	if len(evs) != 1 || evs[0].HostID != "host" || evs[0].ID == "" {
		t.Fatalf("event not stored: %+v", evs)
	}
}

func TestScheduleRoutesToConfiguredChannel(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()
	if err := fx.store.PutGuild(ctx, raid.GuildConfig{GuildID: "g1", RSVPChannelID: "raids"}); err != nil {
		t.Fatalf("put guild: %v", err)
	}

	fx.router.Handle(ctx, command("host", "?rsvp friday 10pm eastern Molten Core"))

	evs, _ := fx.store.ActiveEvents(ctx)
	if len(evs) != 1 || evs[0].ChannelID != "raids" {
		t.Fatalf("event not routed to the sign-up channel: %+v", evs)
	}
}

func TestScheduleBadInputReplies(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	fx.router.Handle(ctx, command("host", "?rsvp someday 10pm eastern Molten Core"))

	if evs, _ := fx.store.ActiveEvents(ctx); len(evs) != 0 {
		t.Fatalf("bad weekday still created an event: %+v", evs)
	}
	msg, ok := fx.adapter.lastSent()
	if !ok || !strings.Contains(msg.text, "monday through sunday") {
		t.Fatalf("no usable error reply: %+v", msg)
	}
}

func TestPrefixRequired(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.router.Handle(context.Background(), command("host", "rsvp friday 10pm eastern Molten Core"))
	if len(fx.adapter.sent) != 0 {
		t.Fatal("unprefixed chatter triggered the bot")
	}
}

func TestCancelPermissions(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()
	fx.seedEvent(t, "m1", "host", true)

	// A bystander cannot cancel.
	fx.router.Handle(ctx, command("rando", "?rsvp cancel m1"))
	ev, _ := fx.store.Event(ctx, "m1")
	if !ev.Active {
		t.Fatal("bystander canceled the event")
	}

	// The host can.
	fx.router.Handle(ctx, command("host", "?rsvp cancel m1"))
	ev, _ = fx.store.Event(ctx, "m1")
	if ev.Active {
		t.Fatal("host cancel did not close the event")
	}
}

func TestCancelByAdminRole(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()
	fx.seedEvent(t, "m1", "host", true)
	if err := fx.store.PutGuild(ctx, raid.GuildConfig{GuildID: "g1", AdminRoleIDs: []string{"administrator"}}); err != nil {
		t.Fatalf("put guild: %v", err)
	}
	fx.adapter.roles["mod"] = []string{"administrator"}

	fx.router.Handle(ctx, command("mod", "?rsvp cancel m1"))

	ev, _ := fx.store.Event(ctx, "m1")
	if ev.Active {
		t.Fatal("admin-role cancel did not close the event")
	}
}

func TestAliasSetAndUse(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()
	fx.seedEvent(t, "m1", "host", true)

	fx.router.Handle(ctx, command("u1", "?rsvp alias set Sneakyfeet"))
	fx.router.Handle(ctx, reaction("u1", "m1", "⚔"))

	ev, _ := fx.store.Event(ctx, "m1")
	p, _ := ev.Participant("u1")
	if p.Name() != "Sneakyfeet" {
		t.Fatalf("alias not used on signup: %q", p.Name())
	}

	fx.router.Handle(ctx, command("u1", "?rsvp alias clear"))
	if _, ok, _ := fx.store.Alias(ctx, "u1"); ok {
		t.Fatal("alias survived clear")
	}
}

func TestRecurCreateAndStop(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()
	ev := fx.seedEvent(t, "m1", "host", true)

	fx.router.Handle(ctx, command("host", "?rsvp recur m1 biweekly"))

	rule, ok, err := fx.store.FindRule(ctx, "g1", "Molten Core")
	if err != nil || !ok {
		t.Fatalf("rule not created: ok=%v err=%v", ok, err)
	}
	if want := ev.StartAt.AddDate(0, 0, 14); !rule.NextRunAt.Equal(want) {
		t.Fatalf("next run %v, want %v", rule.NextRunAt, want)
	}

	// Duplicate rule for the same raid is refused.
	fx.router.Handle(ctx, command("host", "?rsvp recur m1 weekly"))
	again, _, _ := fx.store.FindRule(ctx, "g1", "Molten Core")
	if again.Frequency != raid.FreqBiweekly {
		t.Fatalf("duplicate recur overwrote the rule: %+v", again)
	}

	fx.router.Handle(ctx, command("host", "?rsvp recur stop m1"))
	if _, ok, _ := fx.store.FindRule(ctx, "g1", "Molten Core"); ok {
		t.Fatal("rule survived recur stop")
	}
}

func TestExportSendsDocument(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()
	fx.seedEvent(t, "m1", "host", true)

	fx.router.Handle(ctx, command("u1", "?rsvp export"))

	if len(fx.adapter.docs) != 1 || fx.adapter.docs[0] != "raids.ics" {
		t.Fatalf("no calendar document sent: %v", fx.adapter.docs)
	}
}

func TestSetupOwnerOnly(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.router.Handle(context.Background(), command("rando", "?setup"))
	msg, ok := fx.adapter.lastSent()
	if !ok || !strings.Contains(msg.text, "owner") {
		t.Fatalf("non-owner setup not refused: %+v", msg)
	}
}

func TestSetupDialogue(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	fx.router.Handle(ctx, command("owner", "?setup"))

	answers := []string{"raid-channel", "creator, administrator", "Raid starts soon, log in!"}
	for _, a := range answers {
		deadline := time.After(2 * time.Second)
		for !fx.router.dialogs.Deliver(&transport.Command{ChannelID: "c1", FromID: "owner", Text: a}) {
			select {
			case <-deadline:
				t.Fatalf("dialogue never asked for %q", a)
			case <-time.After(2 * time.Millisecond):
			}
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		gc, ok, err := fx.store.Guild(ctx, "g1")
		if err != nil {
			t.Fatalf("guild: %v", err)
		}
		if ok {
			if gc.RSVPChannelID != "raid-channel" || len(gc.AdminRoleIDs) != 2 || gc.InviteMessage == "" {
				t.Fatalf("setup saved the wrong config: %+v", gc)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("setup never persisted the guild config")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestCreateDialogueCancel(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	fx.router.Handle(ctx, command("host", "?rsvp"))

	deadline := time.After(2 * time.Second)
	for !fx.router.dialogs.Deliver(&transport.Command{ChannelID: "c1", FromID: "host", Text: "cancel"}) {
		select {
		case <-deadline:
			t.Fatal("dialogue never started")
		case <-time.After(2 * time.Millisecond):
		}
	}

	// Give the dialogue goroutine a beat to wind down, then verify
	// nothing was created.
	time.Sleep(20 * time.Millisecond)
	if evs, _ := fx.store.ActiveEvents(ctx); len(evs) != 0 {
		t.Fatalf("canceled dialogue still created an event: %+v", evs)
	}
}

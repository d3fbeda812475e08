package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"raidbot/internal/notify"
	"raidbot/internal/raid"
	"raidbot/internal/render"
	"raidbot/internal/storage"
	"raidbot/internal/transport"
	logx "raidbot/pkg/logx"
)

// Messenger is the scheduler's outbound surface: it knows which channel
// an event lives in, how to render it, and pushes reminders through the
// rate-limited queue.
type Messenger struct {
	adapter  transport.Adapter
	renderer *render.Renderer
	queue    *notify.Service
	store    storage.Store
	log      logx.Logger
}

func NewMessenger(adapter transport.Adapter, renderer *render.Renderer, queue *notify.Service, store storage.Store, log logx.Logger) *Messenger {
	return &Messenger{adapter: adapter, renderer: renderer, queue: queue, store: store, log: log}
}

// PostSummary posts a fresh sign-up message and returns its id, which
// becomes the event id.
func (m *Messenger) PostSummary(ctx context.Context, ev raid.EventRecord) (string, error) {
	ref, err := m.adapter.SendText(ctx,
		transport.ChannelRef{GuildID: ev.GuildID, ChannelID: ev.ChannelID},
		m.renderer.Summary(ev),
		&transport.SendOptions{Buttons: m.renderer.Buttons(), DisablePreview: true})
	if err != nil {
		return "", fmt.Errorf("post summary: %w", err)
	}
	return ref.MessageID, nil
}

// UpdateSummary re-renders the sign-up message after a roster change.
func (m *Messenger) UpdateSummary(ctx context.Context, ev raid.EventRecord) error {
	return m.adapter.EditText(ctx,
		transport.MessageRef{ChannelID: ev.ChannelID, MessageID: ev.ID},
		m.renderer.Summary(ev),
		&transport.SendOptions{Buttons: m.renderer.Buttons(), DisablePreview: true})
}

// LockSummary edits the message into its terminal form and strips the
// keyboard. Transport errors pass through untranslated; the sweep reads
// them to decide locked vs superseded.
func (m *Messenger) LockSummary(ctx context.Context, ev raid.EventRecord) error {
	return m.adapter.EditText(ctx,
		transport.MessageRef{ChannelID: ev.ChannelID, MessageID: ev.ID},
		m.renderer.LockedSummary(ev),
		&transport.SendOptions{DisablePreview: true})
}

// AdminAlert posts the shortfall notice into the event channel.
func (m *Messenger) AdminAlert(ev raid.EventRecord, tally raid.RoleTally, min raid.Minimums, now time.Time) {
	m.queue.Send(
		transport.ChannelRef{GuildID: ev.GuildID, ChannelID: ev.ChannelID},
		render.ShortfallNotice(ev, tally, min, now),
		&transport.SendOptions{DisablePreview: true})
}

// InviteReminder pings the confirmed roster shortly before start. A
// per-guild invite message overrides the configured default.
func (m *Messenger) InviteReminder(ev raid.EventRecord, invite string) {
	if gc, ok, err := m.store.Guild(context.Background(), ev.GuildID); err == nil && ok && gc.InviteMessage != "" {
		invite = gc.InviteMessage
	}

	var names []string
	for _, p := range ev.Participants {
		if p.Status == raid.StatusConfirmed || p.Status == raid.StatusLate {
			names = append(names, p.Name())
		}
	}
	text := fmt.Sprintf("⏰ %s — %s", ev.Description, invite)
	if len(names) > 0 {
		text += "\n" + strings.Join(names, ", ")
	}
	m.queue.Send(
		transport.ChannelRef{GuildID: ev.GuildID, ChannelID: ev.ChannelID},
		text,
		&transport.SendOptions{DisablePreview: true})
}

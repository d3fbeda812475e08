// Package bot wires inbound chat traffic to the raid core: command
// parsing, sign-up button dispatch, and the outbound messenger the
// scheduler talks through.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"

	"raidbot/internal/dialog"
	"raidbot/internal/raid"
	"raidbot/internal/roster"
	"raidbot/internal/storage"
	"raidbot/internal/transport"
	logx "raidbot/pkg/logx"
)

// Config is the router's runtime slice of the app configuration.
type Config struct {
	Prefix string
	// Owners may run setup and the owner-level commands anywhere.
	Owners []string
	// Symbols maps transport tokens (emoji / button payloads) to symbol
	// names; unknown tokens are dropped before the reducer sees them.
	Symbols map[string]string
}

type Router struct {
	store    storage.Store
	roster   *roster.Service
	resolver *raid.Resolver
	msgr     *Messenger
	dialogs  *dialog.Manager
	adapter  transport.Adapter
	log      logx.Logger

	mu      sync.RWMutex
	prefix  string
	owners  map[string]bool
	symbols map[string]raid.Symbol
}

func NewRouter(cfg Config, store storage.Store, ros *roster.Service, resolver *raid.Resolver,
	msgr *Messenger, dialogs *dialog.Manager,
	adapter transport.Adapter, log logx.Logger) *Router {
	r := &Router{
		store:    store,
		roster:   ros,
		resolver: resolver,
		msgr:     msgr,
		dialogs:  dialogs,
		adapter:  adapter,
		log:      log,
	}
	r.Apply(cfg)
	return r
}

// Apply swaps the hot-reloadable parts (prefix, owners, symbol table).
func (r *Router) Apply(cfg Config) {
	owners := make(map[string]bool, len(cfg.Owners))
	for _, id := range cfg.Owners {
		owners[id] = true
	}
	symbols := make(map[string]raid.Symbol, len(cfg.Symbols))
	for token, name := range cfg.Symbols {
		symbols[token] = raid.Symbol(name)
	}
	r.mu.Lock()
	r.prefix = cfg.Prefix
	r.owners = owners
	r.symbols = symbols
	r.mu.Unlock()
}

// Handle dispatches one inbound update. Called from the update pump; any
// blocking work (dialogues) runs on its own goroutine so the pump never
// stalls.
func (r *Router) Handle(ctx context.Context, upd transport.Update) {
	switch upd.Kind {
	case transport.UpdateCommand:
		if upd.Command == nil {
			return
		}
		// Open dialogues get first claim on the user's messages.
		if r.dialogs.Deliver(upd.Command) {
			return
		}
		r.handleCommand(ctx, upd.Command)
	case transport.UpdateReaction:
		if upd.Reaction == nil {
			return
		}
		r.handleReaction(ctx, upd.Reaction)
	}
}

func (r *Router) handleCommand(ctx context.Context, cmd *transport.Command) {
	r.mu.RLock()
	prefix := r.prefix
	r.mu.RUnlock()

	text := strings.TrimSpace(cmd.Text)
	if !strings.HasPrefix(text, prefix) {
		return
	}
	args := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(args) == 0 {
		return
	}

	switch strings.ToLower(args[0]) {
	case "setup":
		r.cmdSetup(ctx, cmd)
	case "rsvp":
		r.cmdRSVP(ctx, cmd, args[1:])
	default:
		// Unknown commands stay silent; this bot shares channels with
		// humans and other bots.
	}
}

// handleReaction folds one sign-up press into the roster and refreshes
// the summary. Stale interactions (closed or vanished events, unknown
// tokens) drop silently; the button under a dead message is not worth an
// error reply.
func (r *Router) handleReaction(ctx context.Context, rx *transport.Reaction) {
	r.mu.RLock()
	sym, ok := r.symbols[rx.Token]
	r.mu.RUnlock()
	if !ok {
		r.log.Debug("unknown reaction token", logx.String("token", rx.Token))
		return
	}

	ev, changed, err := r.roster.Apply(ctx, rx.MessageID, rx.FromID, rx.FromDisplay, sym)
	if err != nil {
		if errors.Is(err, raid.ErrEventClosed) || errors.Is(err, raid.ErrNotFound) {
			r.log.Debug("reaction on dead event",
				logx.String("event", rx.MessageID),
				logx.String("user", rx.FromID))
			return
		}
		r.log.Error("reaction failed",
			logx.String("event", rx.MessageID),
			logx.Err(err))
		return
	}
	if !changed {
		return
	}
	if err := r.msgr.UpdateSummary(ctx, ev); err != nil {
		// Roster state is committed; the next change repaints the message.
		r.log.Warn("summary refresh failed",
			logx.String("event", ev.ID),
			logx.Err(err))
	}
}

func (r *Router) isOwner(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owners[userID]
}

// isAdmin reports whether the user may run guild-level commands: owners
// always, otherwise anyone holding one of the guild's configured admin
// roles.
func (r *Router) isAdmin(ctx context.Context, guildID, userID string) bool {
	if r.isOwner(userID) {
		return true
	}
	gc, ok, err := r.store.Guild(ctx, guildID)
	if err != nil || !ok || len(gc.AdminRoleIDs) == 0 {
		return false
	}
	roles, err := r.adapter.MemberRoles(ctx, guildID, userID)
	if err != nil {
		r.log.Warn("role lookup failed",
			logx.String("guild", guildID),
			logx.String("user", userID),
			logx.Err(err))
		return false
	}
	for _, have := range roles {
		for _, want := range gc.AdminRoleIDs {
			if have == want {
				return true
			}
		}
	}
	return false
}

func (r *Router) reply(ctx context.Context, cmd *transport.Command, text string) {
	_, err := r.adapter.SendText(ctx,
		transport.ChannelRef{GuildID: cmd.GuildID, ChannelID: cmd.ChannelID},
		text, &transport.SendOptions{DisablePreview: true})
	if err != nil {
		r.log.Warn("reply failed", logx.String("channel", cmd.ChannelID), logx.Err(err))
	}
}

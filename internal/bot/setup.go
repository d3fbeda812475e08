package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"raidbot/internal/raid"
	"raidbot/internal/transport"
	logx "raidbot/pkg/logx"
)

// cmdSetup runs the owner-only guild onboarding dialogue: where sign-up
// posts go, who counts as a raid admin, and the reminder text. Nothing
// persists until the last answer; an abandoned setup leaves the previous
// configuration untouched.
func (r *Router) cmdSetup(ctx context.Context, cmd *transport.Command) {
	if !r.isOwner(cmd.FromID) {
		r.reply(ctx, cmd, "Only the bot owner can run setup.")
		return
	}
	go r.setupDialogue(ctx, cmd)
}

func (r *Router) setupDialogue(ctx context.Context, cmd *transport.Command) {
	s, err := r.dialogs.Begin(cmd.ChannelID, cmd.FromID)
	if err != nil {
		r.reply(ctx, cmd, "Finish your current question first (or reply \"cancel\").")
		return
	}
	defer s.Close()

	r.reply(ctx, cmd, "Where should sign-up posts go? Reply \"here\" for this channel, or a channel id.")
	channel, ok := r.askValid(ctx, cmd, s, func(answer string) error {
		if answer == "" {
			return errors.New("empty")
		}
		return nil
	})
	if !ok {
		return
	}
	channelID := channel
	if strings.EqualFold(channel, "here") {
		channelID = cmd.ChannelID
	}

	r.reply(ctx, cmd, "Which member roles count as raid admins? Comma-separated (e.g. creator, administrator), or \"none\".")
	rolesAnswer, ok := r.askValid(ctx, cmd, s, func(answer string) error {
		if answer == "" {
			return errors.New("empty")
		}
		return nil
	})
	if !ok {
		return
	}
	var adminRoles []string
	if !strings.EqualFold(rolesAnswer, "none") {
		for _, part := range strings.Split(rolesAnswer, ",") {
			if role := strings.TrimSpace(part); role != "" {
				adminRoles = append(adminRoles, role)
			}
		}
	}

	r.reply(ctx, cmd, "What should the pre-raid reminder say? Reply \"default\" to keep the stock text.")
	invite, ok := r.askValid(ctx, cmd, s, func(answer string) error {
		if answer == "" {
			return errors.New("empty")
		}
		return nil
	})
	if !ok {
		return
	}
	if strings.EqualFold(invite, "default") {
		invite = ""
	}

	gc := raid.GuildConfig{
		GuildID:       cmd.GuildID,
		RSVPChannelID: channelID,
		AdminRoleIDs:  adminRoles,
		InviteMessage: invite,
	}
	if err := r.store.PutGuild(ctx, gc); err != nil {
		r.log.Error("setup: store guild failed", logx.String("guild", cmd.GuildID), logx.Err(err))
		r.reply(ctx, cmd, "Saving the configuration failed. Try again.")
		return
	}
	r.log.Info("guild configured",
		logx.String("guild", cmd.GuildID),
		logx.String("rsvp_channel", channelID),
		logx.Int("admin_roles", len(adminRoles)))
	r.reply(ctx, cmd, fmt.Sprintf("Setup complete. Sign-ups post to channel %s.", channelID))
}

// Package transport declares the messaging boundary the core talks to.
// Concrete chat backends live in subpackages.
package transport

import (
	"context"
	"errors"
)

// Boundary errors. Adapters map backend-specific failures onto these so
// the core can distinguish "display gone" from transient trouble.
var (
	ErrNotFound  = errors.New("message not found")
	ErrForbidden = errors.New("forbidden")
)

type UpdateKind string

const (
	// UpdateCommand is an inbound text message (possibly a bot command).
	UpdateCommand UpdateKind = "command"
	// UpdateReaction is an inbound sign-up interaction on a posted summary.
	UpdateReaction UpdateKind = "reaction"
)

type Update struct {
	Kind     UpdateKind
	Command  *Command
	Reaction *Reaction
}

// Command is an inbound text message.
type Command struct {
	MessageID   string
	GuildID     string
	ChannelID   string
	FromID      string
	FromDisplay string
	Text        string
}

// Reaction is one sign-up interaction: Token is the raw transport emoji or
// button payload, mapped to a symbol by the router (unknown tokens are
// dropped there, before the reducer).
type Reaction struct {
	MessageID   string
	GuildID     string
	ChannelID   string
	FromID      string
	FromDisplay string
	Token       string
}

// ChannelRef names an outbound destination.
type ChannelRef struct {
	GuildID   string
	ChannelID string
}

// MessageRef names a previously sent message.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// Button is one sign-up affordance rendered under a summary.
type Button struct {
	Label string
	Token string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Buttons renders a sign-up keyboard; nil strips any existing one.
	Buttons []Button
}

// Adapter is the chat backend. All methods are safe for concurrent use.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChannelRef, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	SendDocument(ctx context.Context, to ChannelRef, name string, data []byte, caption string) error

	// MemberRoles returns the caller's role identifiers within a guild,
	// used for admin gating against the configured role set.
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
}

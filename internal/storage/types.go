package storage

import (
	"context"
	"time"

	"raidbot/internal/raid"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process maps, used by tests
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence contract behind the roster, recurrence and
// guild/alias documents. Lookups for a missing record return
// raid.ErrNotFound; "find" style calls report absence via a bool instead.
type Store interface {
	Event(ctx context.Context, id string) (raid.EventRecord, error)
	PutEvent(ctx context.Context, ev raid.EventRecord) error
	DeleteEvent(ctx context.Context, id string) error
	// ActiveEvents is the sweep query: all records with Active = true.
	ActiveEvents(ctx context.Context) ([]raid.EventRecord, error)
	GuildEvents(ctx context.Context, guildID string, activeOnly bool) ([]raid.EventRecord, error)

	Rule(ctx context.Context, id string) (raid.RecurrenceRule, error)
	PutRule(ctx context.Context, rule raid.RecurrenceRule) error
	DeleteRule(ctx context.Context, id string) error
	Rules(ctx context.Context) ([]raid.RecurrenceRule, error)
	// FindRule enforces "at most one active rule per (guild, description)".
	FindRule(ctx context.Context, guildID, description string) (raid.RecurrenceRule, bool, error)

	Guild(ctx context.Context, guildID string) (raid.GuildConfig, bool, error)
	PutGuild(ctx context.Context, gc raid.GuildConfig) error

	Alias(ctx context.Context, userID string) (string, bool, error)
	PutAlias(ctx context.Context, userID, display string) error
	DeleteAlias(ctx context.Context, userID string) error

	Close() error
}

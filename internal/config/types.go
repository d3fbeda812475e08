package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Raid      RaidConfig      `json:"raid"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// OwnerUserIDs may run the setup command anywhere.
	OwnerUserIDs []string `json:"owner_user_ids"`
	// Prefix is the character(s) in front of commands (e.g. "?rsvp").
	Prefix string `json:"prefix"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// OpsChannelID receives mirrored warning/error log lines when
	// logging.chat is enabled.
	OpsChannelID string `json:"ops_channel_id,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./raidbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the two reminder loops.
//
// All durations are Go duration strings. Defaults when omitted:
// sweep_interval "1m", expand_interval "10s", admin_lead "2h",
// user_lead "15m".
type SchedulerConfig struct {
	Enabled        bool   `json:"enabled"`
	SweepInterval  string `json:"sweep_interval,omitempty"`
	ExpandInterval string `json:"expand_interval,omitempty"`
	AdminLead      string `json:"admin_lead,omitempty"`
	UserLead       string `json:"user_lead,omitempty"`
}

// RaidConfig holds domain tables: timezone aliases, the emoji/button token
// to symbol mapping, and headcount minimums per role and overall.
type RaidConfig struct {
	TimezoneAliases map[string]string `json:"timezone_aliases,omitempty"`
	// Symbols maps a transport token (emoji or button payload) to one of:
	// tank, healer, dps, tentative, late, cancel.
	Symbols map[string]string `json:"symbols,omitempty"`

	MinTanks   int `json:"min_tanks,omitempty"`
	MinHealers int `json:"min_healers,omitempty"`
	MinDPS     int `json:"min_dps,omitempty"`
	MinTotal   int `json:"min_total,omitempty"`

	// InviteMessage is the default pre-start reminder text; guilds may
	// override it with the invite-msg command.
	InviteMessage string `json:"invite_message,omitempty"`
}

// DefaultTimezoneAliases mirror the regional labels raiders actually type.
var DefaultTimezoneAliases = map[string]string{
	"eastern":  "America/New_York",
	"central":  "America/Chicago",
	"mountain": "America/Denver",
	"pacific":  "America/Los_Angeles",
}

// DefaultSymbols are the stock sign-up buttons.
var DefaultSymbols = map[string]string{
	"🛡": "tank",
	"💚": "healer",
	"⚔": "dps",
	"❓": "tentative",
	"🕒": "late",
	"✖": "cancel",
}

var knownSymbols = map[string]bool{
	"tank": true, "healer": true, "dps": true,
	"tentative": true, "late": true, "cancel": true,
}

// ApplyDefaults fills omitted tables so an empty raid section still works.
func (c *Config) ApplyDefaults() {
	if len(c.Raid.TimezoneAliases) == 0 {
		c.Raid.TimezoneAliases = DefaultTimezoneAliases
	}
	if len(c.Raid.Symbols) == 0 {
		c.Raid.Symbols = DefaultSymbols
	}
	if c.Raid.InviteMessage == "" {
		c.Raid.InviteMessage = "Your raid starts soon — see you there!"
	}
}

// Validate is the startup preflight: a failure here is the only fatal
// configuration condition.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(c.Telegram.Prefix) == "" {
		return errors.New("telegram.prefix is required")
	}
	for alias, zone := range c.Raid.TimezoneAliases {
		if _, err := time.LoadLocation(zone); err != nil {
			return fmt.Errorf("raid.timezone_aliases: bad alias %q for unknown timezone %q", alias, zone)
		}
	}
	for token, sym := range c.Raid.Symbols {
		if !knownSymbols[sym] {
			return fmt.Errorf("raid.symbols: token %q maps to unknown symbol %q", token, sym)
		}
	}
	if c.Raid.MinTanks < 0 || c.Raid.MinHealers < 0 || c.Raid.MinDPS < 0 || c.Raid.MinTotal < 0 {
		return errors.New("raid minimums must be >= 0")
	}
	for _, field := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"scheduler.sweep_interval", c.Scheduler.SweepInterval},
		{"scheduler.expand_interval", c.Scheduler.ExpandInterval},
		{"scheduler.admin_lead", c.Scheduler.AdminLead},
		{"scheduler.user_lead", c.Scheduler.UserLead},
	} {
		if _, err := ParseDurationField(field.path, field.raw); err != nil {
			return err
		}
	}
	return nil
}

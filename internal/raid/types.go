package raid

import "time"

// Role is the combat role a participant signs up as.
type Role string

const (
	RoleTank   Role = "tank"
	RoleHealer Role = "healer"
	RoleDPS    Role = "dps"
)

// Status is the stored attendance status of a participant.
//
// StatusHost is never stored; it is derived at render time when the
// participant is the event host and their stored status is confirmed.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusTentative Status = "tentative"
	StatusLate      Status = "late"
	StatusHost      Status = "host"
)

// Symbol is one incoming reaction, already mapped from the transport's
// emoji/button token. Unrecognized tokens are dropped before they become
// a Symbol.
type Symbol string

const (
	SymbolTank      Symbol = "tank"
	SymbolHealer    Symbol = "healer"
	SymbolDPS       Symbol = "dps"
	SymbolTentative Symbol = "tentative"
	SymbolLate      Symbol = "late"
	SymbolCancel    Symbol = "cancel"
)

// Symbols lists every recognized symbol, in display order.
var Symbols = []Symbol{SymbolTank, SymbolHealer, SymbolDPS, SymbolTentative, SymbolLate, SymbolCancel}

// RoleValue returns the role a role-symbol maps to, and whether the symbol
// is a role symbol at all.
func (s Symbol) RoleValue() (Role, bool) {
	switch s {
	case SymbolTank:
		return RoleTank, true
	case SymbolHealer:
		return RoleHealer, true
	case SymbolDPS:
		return RoleDPS, true
	default:
		return "", false
	}
}

// StatusValue returns the status a status-symbol maps to, and whether the
// symbol is a status symbol.
func (s Symbol) StatusValue() (Status, bool) {
	switch s {
	case SymbolTentative:
		return StatusTentative, true
	case SymbolLate:
		return StatusLate, true
	default:
		return "", false
	}
}

// Participant is one roster entry. Unique per UserID within an event.
type Participant struct {
	UserID string `json:"user_id"`
	// Display is the transport display name observed at signup time.
	Display string `json:"display,omitempty"`
	// Alias is an operator-set display override; wins over Display.
	Alias  string `json:"alias,omitempty"`
	Role   Role   `json:"role"`
	Status Status `json:"status"`
}

// Name returns the name to render for this participant.
func (p Participant) Name() string {
	if p.Alias != "" {
		return p.Alias
	}
	if p.Display != "" {
		return p.Display
	}
	return p.UserID
}

// EventRecord is one scheduled raid.
//
// ID is the transport message id of the posted summary; the core treats it
// as an opaque key. AdminReminderSent/UserReminderSent are monotonic
// false->true latches. Once Active is false the record is terminal: no
// roster mutation or reminder may occur.
type EventRecord struct {
	ID            string
	GuildID       string
	ChannelID     string
	HostID        string
	StartAt       time.Time // absolute UTC instant
	TimezoneLabel string    // originally specified alias/zone, kept for display
	Description   string
	Participants  []Participant

	AdminReminderSent bool
	UserReminderSent  bool
	Active            bool

	// RecurrenceID is a weak back-reference to the rule that expanded this
	// event, if any. Informational only; no cascade in either direction.
	RecurrenceID string

	CreatedAt time.Time
}

// Participant returns the roster entry for userID, if present.
func (e *EventRecord) Participant(userID string) (Participant, bool) {
	for _, p := range e.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// Frequency is a recurrence cadence.
type Frequency string

const (
	FreqDaily    Frequency = "daily"
	FreqWeekly   Frequency = "weekly"
	FreqBiweekly Frequency = "biweekly"
)

// Period returns the fixed cadence length.
func (f Frequency) Period() time.Duration {
	switch f {
	case FreqDaily:
		return 24 * time.Hour
	case FreqBiweekly:
		return 14 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// RecurrenceRule expands into a fresh EventRecord each time NextRunAt is
// reached, then advances NextRunAt by its period (from the previous value,
// never from "now", so missed ticks still land on the cadence boundary).
type RecurrenceRule struct {
	ID            string
	GuildID       string
	ChannelID     string
	HostID        string
	TimezoneLabel string
	Description   string
	Frequency     Frequency
	NextRunAt     time.Time // absolute UTC
}

// GuildConfig is the per-guild routing/permission document.
type GuildConfig struct {
	GuildID       string
	RSVPChannelID string
	AdminRoleIDs  []string
	// InviteMessage is the text sent with the pre-start participant
	// reminder. Empty means the configured default.
	InviteMessage string
}

// Minimums are the headcount floors checked at the admin reminder
// threshold.
type Minimums struct {
	Tanks   int
	Healers int
	DPS     int
	Total   int
}

// RoleTally is a per-role headcount of an event roster.
type RoleTally struct {
	Tanks   int
	Healers int
	DPS     int
	Total   int
}

// Tally counts roster entries by role.
func Tally(ps []Participant) RoleTally {
	var t RoleTally
	for _, p := range ps {
		switch p.Role {
		case RoleTank:
			t.Tanks++
		case RoleHealer:
			t.Healers++
		case RoleDPS:
			t.DPS++
		}
		t.Total++
	}
	return t
}

// Short reports whether any role count or the total is below its minimum.
func (t RoleTally) Short(min Minimums) bool {
	return t.Tanks < min.Tanks || t.Healers < min.Healers || t.DPS < min.DPS || t.Total < min.Total
}

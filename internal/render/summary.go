// Package render turns event records into the chat summary message, the
// sign-up keyboard, and the calendar export. It is the only place where
// roster state becomes user-visible text; everything here is pure
// formatting with no IO.
package render

import (
	"fmt"
	"strings"
	"time"

	"raidbot/internal/raid"
	"raidbot/internal/transport"
)

// Status glyphs shown in front of each roster name.
const (
	glyphHost      = "👑"
	glyphConfirmed = "✅"
	glyphTentative = "❓"
	glyphLate      = "🕒"
)

var roleTitles = []struct {
	role  raid.Role
	title string
}{
	{raid.RoleTank, "Tanks"},
	{raid.RoleHealer, "Healers"},
	{raid.RoleDPS, "DPS"},
}

var symbolLabels = map[raid.Symbol]string{
	raid.SymbolTank:      "Tank",
	raid.SymbolHealer:    "Healer",
	raid.SymbolDPS:       "DPS",
	raid.SymbolTentative: "Tentative",
	raid.SymbolLate:      "Late",
	raid.SymbolCancel:    "Leave",
}

type Renderer struct {
	resolver *raid.Resolver
	// tokens maps each symbol to the emoji shown on its button and in the
	// section headers. Built by inverting the config token table.
	tokens map[raid.Symbol]string
}

func New(resolver *raid.Resolver, symbolTokens map[string]string) *Renderer {
	tokens := make(map[raid.Symbol]string, len(symbolTokens))
	for token, sym := range symbolTokens {
		tokens[raid.Symbol(sym)] = token
	}
	return &Renderer{resolver: resolver, tokens: tokens}
}

// Buttons returns the sign-up keyboard in display order. The callback
// token is the configured emoji, which the reaction dispatcher maps back
// to a symbol.
func (r *Renderer) Buttons() []transport.Button {
	out := make([]transport.Button, 0, len(raid.Symbols))
	for _, sym := range raid.Symbols {
		token, ok := r.tokens[sym]
		if !ok {
			continue
		}
		out = append(out, transport.Button{
			Label: token + " " + symbolLabels[sym],
			Token: token,
		})
	}
	return out
}

// Summary renders the open-event message body.
func (r *Renderer) Summary(ev raid.EventRecord) string {
	var b strings.Builder
	r.header(&b, ev)
	r.rosterSections(&b, ev)
	b.WriteString("\nTap a button to sign up")
	if cancel, ok := r.tokens[raid.SymbolCancel]; ok {
		b.WriteString("; " + cancel + " removes you")
	}
	b.WriteString(".")
	return b.String()
}

// LockedSummary renders the terminal message body: same roster, no
// sign-up footer.
func (r *Renderer) LockedSummary(ev raid.EventRecord) string {
	var b strings.Builder
	r.header(&b, ev)
	r.rosterSections(&b, ev)
	b.WriteString("\nSign-ups are closed.")
	return b.String()
}

func (r *Renderer) header(b *strings.Builder, ev raid.EventRecord) {
	fmt.Fprintf(b, "📅 %s\n", ev.Description)
	fmt.Fprintf(b, "%s\n", r.formatStart(ev))
	fmt.Fprintf(b, "\nSigned up: %d\n", len(ev.Participants))
}

func (r *Renderer) rosterSections(b *strings.Builder, ev raid.EventRecord) {
	for _, rt := range roleTitles {
		var names []string
		for _, p := range ev.Participants {
			if p.Role != rt.role {
				continue
			}
			names = append(names, statusGlyph(ev, p)+" "+p.Name())
		}
		sym, _ := symbolFor(rt.role)
		token := r.tokens[sym]
		fmt.Fprintf(b, "\n%s %s (%d)\n", token, rt.title, len(names))
		if len(names) == 0 {
			b.WriteString("  No one yet\n")
			continue
		}
		for _, n := range names {
			b.WriteString("  " + n + "\n")
		}
	}
}

// formatStart prints the start instant in the zone the event was created
// with, keeping the label raiders typed ("eastern", not the IANA name).
func (r *Renderer) formatStart(ev raid.EventRecord) string {
	at := ev.StartAt
	if loc, err := r.resolver.Zone(ev.TimezoneLabel); err == nil {
		at = at.In(loc)
	}
	return fmt.Sprintf("%s (%s)", at.Format("Monday, Jan 2 at 3:04 PM"), ev.TimezoneLabel)
}

// statusGlyph derives the display status: the host renders as host while
// confirmed, everyone else renders their stored status.
func statusGlyph(ev raid.EventRecord, p raid.Participant) string {
	if p.UserID == ev.HostID && p.Status == raid.StatusConfirmed {
		return glyphHost
	}
	switch p.Status {
	case raid.StatusTentative:
		return glyphTentative
	case raid.StatusLate:
		return glyphLate
	default:
		return glyphConfirmed
	}
}

func symbolFor(role raid.Role) (raid.Symbol, bool) {
	switch role {
	case raid.RoleTank:
		return raid.SymbolTank, true
	case raid.RoleHealer:
		return raid.SymbolHealer, true
	case raid.RoleDPS:
		return raid.SymbolDPS, true
	default:
		return "", false
	}
}

// ShortfallNotice is the admin alert body sent when the roster is under
// its minimums at the admin reminder threshold.
func ShortfallNotice(ev raid.EventRecord, tally raid.RoleTally, min raid.Minimums, now time.Time) string {
	var short []string
	if tally.Tanks < min.Tanks {
		short = append(short, fmt.Sprintf("tanks %d/%d", tally.Tanks, min.Tanks))
	}
	if tally.Healers < min.Healers {
		short = append(short, fmt.Sprintf("healers %d/%d", tally.Healers, min.Healers))
	}
	if tally.DPS < min.DPS {
		short = append(short, fmt.Sprintf("dps %d/%d", tally.DPS, min.DPS))
	}
	if tally.Total < min.Total {
		short = append(short, fmt.Sprintf("total %d/%d", tally.Total, min.Total))
	}
	return fmt.Sprintf("⚠️ %s is short-handed (%s). Starts %s.",
		ev.Description, strings.Join(short, ", "), relativeStart(ev.StartAt, now))
}

func relativeStart(at, now time.Time) string {
	d := at.Sub(now).Round(time.Minute)
	if d <= 0 {
		return "now"
	}
	return "in " + d.String()
}

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"raidbot/internal/raid"
)

// Memory is a map-backed Store. It is the test double and also a real
// driver ("memory") for throwaway runs; nothing survives a restart.
type Memory struct {
	mu      sync.RWMutex
	events  map[string]raid.EventRecord
	rules   map[string]raid.RecurrenceRule
	guilds  map[string]raid.GuildConfig
	aliases map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		events:  map[string]raid.EventRecord{},
		rules:   map[string]raid.RecurrenceRule{},
		guilds:  map[string]raid.GuildConfig{},
		aliases: map[string]string{},
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Event(_ context.Context, id string) (raid.EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	if !ok {
		return raid.EventRecord{}, fmt.Errorf("event %s: %w", id, raid.ErrNotFound)
	}
	return cloneEvent(ev), nil
}

func (m *Memory) PutEvent(_ context.Context, ev raid.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.ID] = cloneEvent(ev)
	return nil
}

func (m *Memory) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
	return nil
}

func (m *Memory) ActiveEvents(_ context.Context) ([]raid.EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []raid.EventRecord
	for _, ev := range m.events {
		if ev.Active {
			out = append(out, cloneEvent(ev))
		}
	}
	sortEvents(out)
	return out, nil
}

func (m *Memory) GuildEvents(_ context.Context, guildID string, activeOnly bool) ([]raid.EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []raid.EventRecord
	for _, ev := range m.events {
		if ev.GuildID != guildID {
			continue
		}
		if activeOnly && !ev.Active {
			continue
		}
		out = append(out, cloneEvent(ev))
	}
	sortEvents(out)
	return out, nil
}

func (m *Memory) Rule(_ context.Context, id string) (raid.RecurrenceRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return raid.RecurrenceRule{}, fmt.Errorf("rule %s: %w", id, raid.ErrNotFound)
	}
	return r, nil
}

func (m *Memory) PutRule(_ context.Context, rule raid.RecurrenceRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = rule
	return nil
}

func (m *Memory) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, id)
	return nil
}

func (m *Memory) Rules(_ context.Context) ([]raid.RecurrenceRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]raid.RecurrenceRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRunAt.Before(out[j].NextRunAt) })
	return out, nil
}

func (m *Memory) FindRule(_ context.Context, guildID, description string) (raid.RecurrenceRule, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rules {
		if r.GuildID == guildID && r.Description == description {
			return r, true, nil
		}
	}
	return raid.RecurrenceRule{}, false, nil
}

func (m *Memory) Guild(_ context.Context, guildID string) (raid.GuildConfig, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gc, ok := m.guilds[guildID]
	if !ok {
		return raid.GuildConfig{}, false, nil
	}
	gc.AdminRoleIDs = append([]string(nil), gc.AdminRoleIDs...)
	return gc, true, nil
}

func (m *Memory) PutGuild(_ context.Context, gc raid.GuildConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gc.AdminRoleIDs = append([]string(nil), gc.AdminRoleIDs...)
	m.guilds[gc.GuildID] = gc
	return nil
}

func (m *Memory) Alias(_ context.Context, userID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	display, ok := m.aliases[userID]
	return display, ok, nil
}

func (m *Memory) PutAlias(_ context.Context, userID, display string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliases[userID] = display
	return nil
}

func (m *Memory) DeleteAlias(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.aliases, userID)
	return nil
}

func cloneEvent(ev raid.EventRecord) raid.EventRecord {
	ev.Participants = append([]raid.Participant(nil), ev.Participants...)
	return ev
}

func sortEvents(evs []raid.EventRecord) {
	sort.Slice(evs, func(i, j int) bool {
		if evs[i].StartAt.Equal(evs[j].StartAt) {
			return evs[i].ID < evs[j].ID
		}
		return evs[i].StartAt.Before(evs[j].StartAt)
	})
}

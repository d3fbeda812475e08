// Package roster serializes all mutations of a single event record.
//
// Every write goes through a per-event mutex, so concurrent signups for
// the same event apply one at a time in arrival order while different
// events proceed independently. The lock is never held across transport
// IO; callers do their sends/edits after the mutation commits.
package roster

import (
	"context"
	"fmt"
	"sync"

	"raidbot/internal/eventbus"
	"raidbot/internal/raid"
	"raidbot/internal/storage"
	logx "raidbot/pkg/logx"
)

type Service struct {
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	return &Service{
		store: store,
		bus:   bus,
		log:   log,
		locks: map[string]*sync.Mutex{},
	}
}

func (s *Service) lock(eventID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[eventID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[eventID] = l
	}
	return l
}

// Apply folds one signup symbol into the event's roster and persists the
// result. The returned bool reports whether the roster actually changed;
// no-op symbols (duplicate joins, status for an absent user) return the
// current record unchanged. Closed events reject with raid.ErrEventClosed.
func (s *Service) Apply(ctx context.Context, eventID, userID, display string, sym raid.Symbol) (raid.EventRecord, bool, error) {
	l := s.lock(eventID)
	l.Lock()
	defer l.Unlock()

	ev, err := s.store.Event(ctx, eventID)
	if err != nil {
		return raid.EventRecord{}, false, err
	}
	if !ev.Active {
		return ev, false, fmt.Errorf("event %s: %w", eventID, raid.ErrEventClosed)
	}

	alias, _, err := s.store.Alias(ctx, userID)
	if err != nil {
		return raid.EventRecord{}, false, fmt.Errorf("alias lookup: %w", err)
	}

	next, changed := raid.Apply(ev.Participants, userID, display, alias, sym)
	if !changed {
		return ev, false, nil
	}
	ev.Participants = next
	if err := s.store.PutEvent(ctx, ev); err != nil {
		return raid.EventRecord{}, false, fmt.Errorf("persist roster: %w", err)
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeRosterChanged, Data: ev.ID})
	}
	s.log.Debug("roster updated",
		logx.String("event", ev.ID),
		logx.String("user", userID),
		logx.String("symbol", string(sym)),
		logx.Int("size", len(ev.Participants)))
	return ev, true, nil
}

// Transition loads the event under its lock, lets fn mutate the copy in
// memory, and persists it when fn reports a change. fn must not do IO;
// reminder sends and message edits happen after Transition returns.
func (s *Service) Transition(ctx context.Context, eventID string, fn func(*raid.EventRecord) bool) (raid.EventRecord, bool, error) {
	l := s.lock(eventID)
	l.Lock()
	defer l.Unlock()

	ev, err := s.store.Event(ctx, eventID)
	if err != nil {
		return raid.EventRecord{}, false, err
	}
	if !fn(&ev) {
		return ev, false, nil
	}
	if err := s.store.PutEvent(ctx, ev); err != nil {
		return raid.EventRecord{}, false, fmt.Errorf("persist transition: %w", err)
	}
	return ev, true, nil
}

// Forget drops the per-event mutex for a record that no longer exists.
func (s *Service) Forget(eventID string) {
	s.mu.Lock()
	delete(s.locks, eventID)
	s.mu.Unlock()
}

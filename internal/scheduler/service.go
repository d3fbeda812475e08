// Package scheduler runs the two timer loops that move events through
// their lifecycle without user input: the reminder/lock sweep and the
// recurrence expansion tick.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"raidbot/internal/eventbus"
	"raidbot/internal/roster"
	"raidbot/internal/storage"
	logx "raidbot/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	cfg    Config
	store  storage.Store
	roster *roster.Service
	msgr   Messenger
	bus    eventbus.Bus
	log    logx.Logger

	// now is swappable so tests can drive the sweeps deterministically.
	now func() time.Time

	parser cron.Parser
	c      *cron.Cron
}

func New(cfg Config, store storage.Store, ros *roster.Service, msgr Messenger, bus eventbus.Bus, log logx.Logger) *Service {
	cfg.applyDefaults()
	return &Service{
		cfg:    cfg,
		store:  store,
		roster: ros,
		msgr:   msgr,
		bus:    bus,
		log:    log,
		now:    time.Now,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return nil
	}
	return s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) error {
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.SweepInterval), func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.ExpandInterval), func() { s.Expand(ctx) }); err != nil {
		return fmt.Errorf("register expand: %w", err)
	}
	c.Start()
	s.c = c
	s.log.Info("scheduler started",
		logx.Duration("sweep", s.cfg.SweepInterval),
		logx.Duration("expand", s.cfg.ExpandInterval))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
	s.log.Info("scheduler stopped")
}

// Apply swaps the runtime configuration. Interval changes restart the
// cron entries; lead/minimum changes take effect on the next sweep.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	cfg.applyDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()

	restart := cfg.SweepInterval != s.cfg.SweepInterval ||
		cfg.ExpandInterval != s.cfg.ExpandInterval ||
		cfg.Enabled != s.cfg.Enabled
	s.cfg = cfg

	if !restart {
		return
	}
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	if !cfg.Enabled {
		s.log.Info("scheduler disabled by config update")
		return
	}
	if err := s.startLocked(ctx); err != nil {
		s.log.Error("scheduler restart failed", logx.Err(err))
	}
}

func (s *Service) snapshot() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Package app assembles the process: configuration, logging, storage,
// the Telegram adapter, the router, and the scheduler, plus the config
// hot-reload fan-out that keeps them in sync.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"raidbot/internal/bot"
	"raidbot/internal/config"
	"raidbot/internal/dialog"
	"raidbot/internal/eventbus"
	"raidbot/internal/notify"
	"raidbot/internal/raid"
	"raidbot/internal/render"
	"raidbot/internal/roster"
	"raidbot/internal/runtime/supervisor"
	"raidbot/internal/scheduler"
	"raidbot/internal/storage"
	kit "raidbot/internal/transport"
	"raidbot/internal/transport/telegram"
	logx "raidbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	queue   *notify.Service
	sched   *scheduler.Service
	router  *bot.Router

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with chat mirroring off, set the target, then apply the
	// real config so the first Apply() cannot warn about a missing target.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Chat.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	log = log.With(logx.String("comp", "app"))
	if cfg.Telegram.OpsChannelID != "" {
		logSvc.SetChatTarget(kit.ChannelRef{ChannelID: cfg.Telegram.OpsChannelID})
	}
	logSvc.Apply(logCfg)

	bus := eventbus.New()

	storageCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storageCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	resolver := raid.NewResolver(cfg.Raid.TimezoneAliases)
	renderer := render.New(resolver, cfg.Raid.Symbols)
	ros := roster.New(store, bus, log.With(logx.String("comp", "roster")))
	queue := notify.New(ad, notify.Config{}, log.With(logx.String("comp", "notify")))
	msgr := bot.NewMessenger(ad, renderer, queue, store, log.With(logx.String("comp", "messenger")))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, store, ros, msgr, bus, log.With(logx.String("comp", "scheduler")))

	router := bot.NewRouter(mapRouterConfig(cfg), store, ros, resolver, msgr,
		dialog.NewManager(0), ad, log.With(logx.String("comp", "router")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		queue:   queue,
		sched:   sched,
		router:  router,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("notify.queue", a.queue.Run)

	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go0("updates.dispatch", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case upd := <-a.updates:
				a.router.Handle(c, upd)
			}
		}
	})

	events, unsub := a.bus.Subscribe(32)
	a.sup.Go0("bus.audit", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("lifecycle event",
					logx.String("type", e.Type),
					logx.Any("data", e.Data))
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, lastApplied, cfg)
				lastApplied = cfg
			}
		}
	})

	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("raidbot started")
	return nil
}

// applyConfig pushes a hot-reloaded config into the running services.
// The resolver and renderer tables are construction-time; a change there
// is flagged but needs a restart.
func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.Telegram.OpsChannelID != "" {
		a.logs.SetChatTarget(kit.ChannelRef{ChannelID: cfg.Telegram.OpsChannelID})
	} else {
		a.logs.SetChatTarget(kit.ChannelRef{})
	}
	a.logs.Apply(mapLoggingConfig(cfg))

	a.router.Apply(mapRouterConfig(cfg))

	if schedCfg, err := mapSchedulerConfig(cfg); err == nil {
		a.sched.Apply(ctx, schedCfg)
	} else {
		a.log.Warn("scheduler config rejected on reload", logx.Err(err))
	}

	if prev != nil && !sameStringMap(prev.Raid.TimezoneAliases, cfg.Raid.TimezoneAliases) {
		a.log.Warn("timezone aliases changed; restart required to apply")
	}
	if prev != nil && prev.Storage != cfg.Storage {
		a.log.Warn("storage config changed; restart required to apply")
	}
	a.log.Info("config applied")
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("raidbot stopping")

	a.sched.Stop()
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop failed", logx.Err(err))
	}
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("supervisor stop", logx.Err(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	_ = a.logs.Close()
	return nil
}

func sameStringMap(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

package app

import (
	"raidbot/internal/bot"
	"raidbot/internal/config"
	"raidbot/internal/raid"
	"raidbot/internal/scheduler"
	"raidbot/internal/storage"
	logx "raidbot/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	out := scheduler.Config{
		Enabled: cfg.Scheduler.Enabled,
		Minimums: raid.Minimums{
			Tanks:   cfg.Raid.MinTanks,
			Healers: cfg.Raid.MinHealers,
			DPS:     cfg.Raid.MinDPS,
			Total:   cfg.Raid.MinTotal,
		},
		InviteMessage: cfg.Raid.InviteMessage,
	}
	var err error
	if out.SweepInterval, err = config.ParseDurationOrDefault("scheduler.sweep_interval", cfg.Scheduler.SweepInterval, 0); err != nil {
		return scheduler.Config{}, err
	}
	if out.ExpandInterval, err = config.ParseDurationOrDefault("scheduler.expand_interval", cfg.Scheduler.ExpandInterval, 0); err != nil {
		return scheduler.Config{}, err
	}
	if out.AdminLead, err = config.ParseDurationOrDefault("scheduler.admin_lead", cfg.Scheduler.AdminLead, 0); err != nil {
		return scheduler.Config{}, err
	}
	if out.UserLead, err = config.ParseDurationOrDefault("scheduler.user_lead", cfg.Scheduler.UserLead, 0); err != nil {
		return scheduler.Config{}, err
	}
	return out, nil
}

func mapRouterConfig(cfg *config.Config) bot.Config {
	return bot.Config{
		Prefix:  cfg.Telegram.Prefix,
		Owners:  cfg.Telegram.OwnerUserIDs,
		Symbols: cfg.Raid.Symbols,
	}
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "modernc.org/sqlite"

	"raidbot/internal/raid"
	logx "raidbot/pkg/logx"
)

//go:embed migrations.sql
var migrations string

const defaultBusyTimeout = 5 * time.Second

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := cfg.Path
	if path == "" {
		path = "raidbot.db"
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	dsn := "file:" + path + "?" + url.Values{
		"_pragma": []string{
			fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()),
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(1)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer: the driver serializes anyway, and one connection keeps
	// WAL checkpointing predictable.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	log.Info("sqlite storage ready", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Event(ctx context.Context, id string) (raid.EventRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, guild_id, channel_id, host_id, start_at, tz_label, description,
		       participants, admin_reminded, user_reminded, active, recurrence_id, created_at
		FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return raid.EventRecord{}, fmt.Errorf("event %s: %w", id, raid.ErrNotFound)
	}
	return ev, err
}

func (s *sqliteStore) PutEvent(ctx context.Context, ev raid.EventRecord) error {
	parts, err := json.Marshal(ev.Participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events
			(id, guild_id, channel_id, host_id, start_at, tz_label, description,
			 participants, admin_reminded, user_reminded, active, recurrence_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			guild_id = excluded.guild_id,
			channel_id = excluded.channel_id,
			host_id = excluded.host_id,
			start_at = excluded.start_at,
			tz_label = excluded.tz_label,
			description = excluded.description,
			participants = excluded.participants,
			admin_reminded = excluded.admin_reminded,
			user_reminded = excluded.user_reminded,
			active = excluded.active,
			recurrence_id = excluded.recurrence_id,
			created_at = excluded.created_at`,
		ev.ID, ev.GuildID, ev.ChannelID, ev.HostID, ev.StartAt.UnixMilli(),
		ev.TimezoneLabel, ev.Description, string(parts),
		boolInt(ev.AdminReminderSent), boolInt(ev.UserReminderSent), boolInt(ev.Active),
		ev.RecurrenceID, ev.CreatedAt.UnixMilli())
	return err
}

func (s *sqliteStore) DeleteEvent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) ActiveEvents(ctx context.Context) ([]raid.EventRecord, error) {
	return s.queryEvents(ctx, `
		SELECT id, guild_id, channel_id, host_id, start_at, tz_label, description,
		       participants, admin_reminded, user_reminded, active, recurrence_id, created_at
		FROM events WHERE active = 1 ORDER BY start_at`)
}

func (s *sqliteStore) GuildEvents(ctx context.Context, guildID string, activeOnly bool) ([]raid.EventRecord, error) {
	q := `
		SELECT id, guild_id, channel_id, host_id, start_at, tz_label, description,
		       participants, admin_reminded, user_reminded, active, recurrence_id, created_at
		FROM events WHERE guild_id = ?`
	if activeOnly {
		q += ` AND active = 1`
	}
	q += ` ORDER BY start_at`
	return s.queryEvents(ctx, q, guildID)
}

func (s *sqliteStore) queryEvents(ctx context.Context, q string, args ...any) ([]raid.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []raid.EventRecord
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (raid.EventRecord, error) {
	var (
		ev                 raid.EventRecord
		startAt, createdAt int64
		parts              string
		adminRem, userRem  int
		active             int
	)
	err := row.Scan(&ev.ID, &ev.GuildID, &ev.ChannelID, &ev.HostID, &startAt,
		&ev.TimezoneLabel, &ev.Description, &parts, &adminRem, &userRem, &active,
		&ev.RecurrenceID, &createdAt)
	if err != nil {
		return raid.EventRecord{}, err
	}
	if err := json.Unmarshal([]byte(parts), &ev.Participants); err != nil {
		return raid.EventRecord{}, fmt.Errorf("decode participants for %s: %w", ev.ID, err)
	}
	ev.StartAt = time.UnixMilli(startAt).UTC()
	ev.CreatedAt = time.UnixMilli(createdAt).UTC()
	ev.AdminReminderSent = adminRem != 0
	ev.UserReminderSent = userRem != 0
	ev.Active = active != 0
	return ev, nil
}

func (s *sqliteStore) Rule(ctx context.Context, id string) (raid.RecurrenceRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, guild_id, channel_id, host_id, tz_label, description, frequency, next_run_at
		FROM rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return raid.RecurrenceRule{}, fmt.Errorf("rule %s: %w", id, raid.ErrNotFound)
	}
	return r, err
}

func (s *sqliteStore) PutRule(ctx context.Context, rule raid.RecurrenceRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (id, guild_id, channel_id, host_id, tz_label, description, frequency, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			guild_id = excluded.guild_id,
			channel_id = excluded.channel_id,
			host_id = excluded.host_id,
			tz_label = excluded.tz_label,
			description = excluded.description,
			frequency = excluded.frequency,
			next_run_at = excluded.next_run_at`,
		rule.ID, rule.GuildID, rule.ChannelID, rule.HostID, rule.TimezoneLabel,
		rule.Description, string(rule.Frequency), rule.NextRunAt.UnixMilli())
	return err
}

func (s *sqliteStore) DeleteRule(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) Rules(ctx context.Context) ([]raid.RecurrenceRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, channel_id, host_id, tz_label, description, frequency, next_run_at
		FROM rules ORDER BY next_run_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []raid.RecurrenceRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) FindRule(ctx context.Context, guildID, description string) (raid.RecurrenceRule, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, guild_id, channel_id, host_id, tz_label, description, frequency, next_run_at
		FROM rules WHERE guild_id = ? AND description = ?`, guildID, description)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return raid.RecurrenceRule{}, false, nil
	}
	if err != nil {
		return raid.RecurrenceRule{}, false, err
	}
	return r, true, nil
}

func scanRule(row rowScanner) (raid.RecurrenceRule, error) {
	var (
		r      raid.RecurrenceRule
		freq   string
		nextAt int64
	)
	err := row.Scan(&r.ID, &r.GuildID, &r.ChannelID, &r.HostID, &r.TimezoneLabel,
		&r.Description, &freq, &nextAt)
	if err != nil {
		return raid.RecurrenceRule{}, err
	}
	r.Frequency = raid.Frequency(freq)
	r.NextRunAt = time.UnixMilli(nextAt).UTC()
	return r, nil
}

func (s *sqliteStore) Guild(ctx context.Context, guildID string) (raid.GuildConfig, bool, error) {
	var (
		gc    raid.GuildConfig
		roles string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT guild_id, rsvp_channel_id, admin_role_ids, invite_message
		FROM guilds WHERE guild_id = ?`, guildID).
		Scan(&gc.GuildID, &gc.RSVPChannelID, &roles, &gc.InviteMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return raid.GuildConfig{}, false, nil
	}
	if err != nil {
		return raid.GuildConfig{}, false, err
	}
	if err := json.Unmarshal([]byte(roles), &gc.AdminRoleIDs); err != nil {
		return raid.GuildConfig{}, false, fmt.Errorf("decode admin roles for %s: %w", guildID, err)
	}
	return gc, true, nil
}

func (s *sqliteStore) PutGuild(ctx context.Context, gc raid.GuildConfig) error {
	roles, err := json.Marshal(gc.AdminRoleIDs)
	if err != nil {
		return fmt.Errorf("encode admin roles: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO guilds (guild_id, rsvp_channel_id, admin_role_ids, invite_message)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			rsvp_channel_id = excluded.rsvp_channel_id,
			admin_role_ids = excluded.admin_role_ids,
			invite_message = excluded.invite_message`,
		gc.GuildID, gc.RSVPChannelID, string(roles), gc.InviteMessage)
	return err
}

func (s *sqliteStore) Alias(ctx context.Context, userID string) (string, bool, error) {
	var display string
	err := s.db.QueryRowContext(ctx, `SELECT display FROM aliases WHERE user_id = ?`, userID).Scan(&display)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return display, true, nil
}

func (s *sqliteStore) PutAlias(ctx context.Context, userID, display string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO aliases (user_id, display) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET display = excluded.display`,
		userID, display)
	return err
}

func (s *sqliteStore) DeleteAlias(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM aliases WHERE user_id = ?`, userID)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

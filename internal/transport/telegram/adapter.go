// Package telegram adapts the transport boundary onto the Telegram Bot
// API via telebot. Guild and channel both map to the Telegram chat id;
// sign-up "reactions" are inline keyboard callbacks carrying the emoji
// token as payload.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "raidbot/internal/runtime/supervisor"
	kit "raidbot/internal/transport"
	logx "raidbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores chan<- kit.Update
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	dropped uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Chat == nil {
			return nil
		}
		chatID := strconv.FormatInt(m.Chat.ID, 10)
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateCommand,
			Command: &kit.Command{
				MessageID:   strconv.Itoa(m.ID),
				GuildID:     chatID,
				ChannelID:   chatID,
				FromID:      strconv.FormatInt(m.Sender.ID, 10),
				FromDisplay: displayName(m.Sender),
				Text:        m.Text,
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil || m.Chat == nil {
			return nil
		}
		chatID := strconv.FormatInt(m.Chat.ID, 10)
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateReaction,
			Reaction: &kit.Reaction{
				MessageID:   strconv.Itoa(m.ID),
				GuildID:     chatID,
				ChannelID:   chatID,
				FromID:      strconv.FormatInt(cb.Sender.ID, 10),
				FromDisplay: displayName(cb.Sender),
				Token:       strings.TrimSpace(cb.Data),
			},
		})
		// Ack immediately so the button stops spinning; the roster edit
		// is the real feedback.
		return c.Respond(&tele.CallbackResponse{})
	})
}

func displayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return u.Username
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.dropped, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "telegram"))))
	sup := a.sup
	a.runMu.Unlock()

	// Dropped-update counter is reported periodically, not per update.
	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				if n := atomic.SwapUint64(&a.dropped, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.dropped, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)))
				}
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// telebot's Start blocks until Stop; run it under the restart loop so
	// an unexpected poller exit self-heals.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() == nil {
			return errors.New("poller exited unexpectedly")
		}
		return nil
	})
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	sup.Cancel()
	go a.bot.Stop()

	// Don't let a hanging long-poll stall shutdown.
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

const textLimit = 4000

func (a *Adapter) SendText(ctx context.Context, to kit.ChannelRef, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	chat, err := chatOf(to.ChannelID)
	if err != nil {
		return kit.MessageRef{}, err
	}
	msg, err := a.bot.Send(chat, truncate(text, textLimit), sendOptions(opt))
	if err != nil {
		return kit.MessageRef{}, mapError(err)
	}
	return kit.MessageRef{ChannelID: to.ChannelID, MessageID: strconv.Itoa(msg.ID)}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chat, err := chatOf(ref.ChannelID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return kit.ErrNotFound
	}
	m := &tele.Message{ID: msgID, Chat: chat}
	if _, err := a.bot.Edit(m, truncate(text, textLimit), sendOptions(opt)); err != nil {
		return mapError(err)
	}
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chat, err := chatOf(ref.ChannelID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return kit.ErrNotFound
	}
	if err := a.bot.Delete(&tele.Message{ID: msgID, Chat: chat}); err != nil {
		return mapError(err)
	}
	return nil
}

func (a *Adapter) SendDocument(ctx context.Context, to kit.ChannelRef, name string, data []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chat, err := chatOf(to.ChannelID)
	if err != nil {
		return err
	}
	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(data)),
		FileName: name,
		Caption:  caption,
	}
	if _, err := a.bot.Send(chat, doc); err != nil {
		return mapError(err)
	}
	return nil
}

// MemberRoles reports the user's standing in the chat. Telegram has no
// custom role system; the chat member status (creator, administrator,
// member, ...) is the role set admins are matched against.
func (a *Adapter) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chat, err := chatOf(guildID)
	if err != nil {
		return nil, err
	}
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil, kit.ErrNotFound
	}
	member, err := a.bot.ChatMemberOf(chat, &tele.User{ID: uid})
	if err != nil {
		return nil, mapError(err)
	}
	return []string{string(member.Role)}, nil
}

func chatOf(channelID string) (*tele.Chat, error) {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return nil, kit.ErrNotFound
	}
	return &tele.Chat{ID: id}, nil
}

func sendOptions(opt *kit.SendOptions) *tele.SendOptions {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	so := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}
	if len(opt.Buttons) > 0 {
		so.ReplyMarkup = keyboard(opt.Buttons)
	}
	return so
}

// keyboard lays the sign-up buttons out three per row.
func keyboard(buttons []kit.Button) *tele.ReplyMarkup {
	const perRow = 3
	var rows [][]tele.InlineButton
	var row []tele.InlineButton
	for _, b := range buttons {
		row = append(row, tele.InlineButton{Text: b.Label, Data: b.Token})
		if len(row) == perRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

// mapError folds Telegram API failures onto the transport sentinels the
// core keys decisions off. "message is not modified" is a success: the
// rendered text was already up to date.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var te *tele.Error
	if errors.As(err, &te) {
		desc := strings.ToLower(te.Description)
		switch {
		case strings.Contains(desc, "message is not modified"):
			return nil
		case te.Code == 403,
			strings.Contains(desc, "bot was kicked"),
			strings.Contains(desc, "not enough rights"):
			return kit.ErrForbidden
		case strings.Contains(desc, "not found"),
			strings.Contains(desc, "message can't be edited"),
			strings.Contains(desc, "message to edit not found"),
			strings.Contains(desc, "message to delete not found"):
			return kit.ErrNotFound
		}
	}
	return err
}

func truncate(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit-1]) + "…"
}

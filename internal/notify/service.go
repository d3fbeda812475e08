// Package notify is the outbound reminder queue. Reminder sweeps can
// release a burst of messages at once; pushing them through a token
// bucket keeps the bot under the transport's flood limits without
// blocking the scheduler.
package notify

import (
	"context"

	"golang.org/x/time/rate"

	"raidbot/internal/transport"
	logx "raidbot/pkg/logx"
)

type Config struct {
	// PerSecond is the sustained outbound message rate. Telegram allows
	// ~30 msg/s overall but only ~1 msg/s per chat; the default stays
	// well under both.
	PerSecond float64
	Burst     int
	Buffer    int
}

func (c *Config) applyDefaults() {
	if c.PerSecond <= 0 {
		c.PerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
}

type job struct {
	to   transport.ChannelRef
	text string
	opts *transport.SendOptions
}

type Service struct {
	adapter transport.Adapter
	log     logx.Logger
	limiter *rate.Limiter
	queue   chan job
}

func New(adapter transport.Adapter, cfg Config, log logx.Logger) *Service {
	cfg.applyDefaults()
	return &Service{
		adapter: adapter,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Burst),
		queue:   make(chan job, cfg.Buffer),
	}
}

// Send enqueues a message without blocking. A full queue drops the
// message; reminders are advisory, and the terminal roster state is
// always recoverable from the summary message itself.
func (s *Service) Send(to transport.ChannelRef, text string, opts *transport.SendOptions) bool {
	select {
	case s.queue <- job{to: to, text: text, opts: opts}:
		return true
	default:
		s.log.Warn("notify queue full, dropping message", logx.String("channel", to.ChannelID))
		return false
	}
}

// Run drains the queue until ctx is canceled. Meant to be driven by the
// supervisor.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-s.queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
			if _, err := s.adapter.SendText(ctx, j.to, j.text, j.opts); err != nil {
				s.log.Warn("notify send failed",
					logx.String("channel", j.to.ChannelID),
					logx.Err(err))
			}
		}
	}
}

// Pending returns the queue depth, for diagnostics.
func (s *Service) Pending() int { return len(s.queue) }

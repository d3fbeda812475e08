// Package dialog lets a command handler hold a short question/answer
// conversation with one user in one channel. The router feeds every
// inbound message through Deliver first; while a session is waiting, the
// user's next message is consumed as the answer instead of being parsed
// as a command.
package dialog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"raidbot/internal/raid"
	"raidbot/internal/transport"
)

// ErrTimeout means the user went quiet mid-dialogue. The whole exchange
// is abandoned; nothing asked so far is kept.
var ErrTimeout = errors.New("dialogue timed out")

// ErrBusy means the user already has a dialogue open in this channel.
var ErrBusy = errors.New("dialogue already in progress")

const defaultStepTimeout = 90 * time.Second

type session struct {
	answers chan string
}

type Manager struct {
	stepTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(stepTimeout time.Duration) *Manager {
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}
	return &Manager{
		stepTimeout: stepTimeout,
		sessions:    map[string]*session{},
	}
}

func key(channelID, userID string) string { return channelID + "\x00" + userID }

// Deliver offers an inbound message to a waiting session and reports
// whether it was consumed.
func (m *Manager) Deliver(cmd *transport.Command) bool {
	m.mu.Lock()
	s, ok := m.sessions[key(cmd.ChannelID, cmd.FromID)]
	m.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case s.answers <- cmd.Text:
		return true
	default:
		// Session is between questions; let the router have it.
		return false
	}
}

// Begin opens a session for the user in the channel. The returned close
// function must be called when the dialogue ends, on every path.
func (m *Manager) Begin(channelID, userID string) (*Session, error) {
	k := key(channelID, userID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.sessions[k]; busy {
		return nil, ErrBusy
	}
	s := &session{answers: make(chan string)}
	m.sessions[k] = s
	return &Session{mgr: m, key: k, s: s}, nil
}

// Session is one open dialogue.
type Session struct {
	mgr *Manager
	key string
	s   *session
}

// Ask waits for the user's next message. Typing "cancel" (any case)
// aborts with raid.ErrUserCanceled; silence past the step timeout aborts
// with ErrTimeout.
func (s *Session) Ask(ctx context.Context) (string, error) {
	timer := time.NewTimer(s.mgr.stepTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", ErrTimeout
	case answer := <-s.s.answers:
		if strings.EqualFold(strings.TrimSpace(answer), "cancel") {
			return "", raid.ErrUserCanceled
		}
		return strings.TrimSpace(answer), nil
	}
}

// Close releases the session slot.
func (s *Session) Close() {
	s.mgr.mu.Lock()
	delete(s.mgr.sessions, s.key)
	s.mgr.mu.Unlock()
}

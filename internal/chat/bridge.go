package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gempir/go-twitch-irc/v4"
)

var (
	ErrBadChannel  = errors.New("chat: invalid channel name")
	ErrJoinTimeout = errors.New("chat: join not confirmed")
	ErrRejected    = errors.New("chat: server rejected join")
	ErrConnLost    = errors.New("chat: connection lost")
)

const DefaultAddr = "irc.chat.twitch.tv:6697"

type BridgeConfig struct {
	// Addr is the IRC server as host:port.
	Addr string
	// Insecure dials plain TCP instead of TLS.
	Insecure bool
	// Nick used for the anonymous login.
	Nick        string
	JoinTimeout time.Duration
}

// Bridge connects to a chat service and forwards channel messages into a
// Queue. Each Listen call owns exactly one client.
type Bridge struct {
	cfg BridgeConfig
	log *log.Logger
}

func NewBridge(cfg BridgeConfig, logger *log.Logger) *Bridge {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Nick == "" {
		cfg.Nick = "justinfan12345"
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Bridge{cfg: cfg, log: logger}
}

// Listen starts the listener goroutine and returns immediately. The
// goroutine runs until ctx is cancelled or the connection fails; a failure is
// reported once through q.Fail.
func (b *Bridge) Listen(ctx context.Context, channel string, q *Queue) {
	go func() {
		err := b.run(ctx, channel, q)
		switch {
		case err == nil, ctx.Err() != nil:
			b.log.Printf("listener for %q stopped", channel)
		default:
			b.log.Printf("listener for %q failed: %v", channel, err)
			q.Fail(err)
		}
	}()
}

func (b *Bridge) run(ctx context.Context, channel string, q *Queue) error {
	ch, ok := NormalizeChannel(channel)
	if !ok {
		return fmt.Errorf("%w: %q", ErrBadChannel, channel)
	}

	client := twitch.NewClient(b.cfg.Nick, "oauth:anonymous")
	client.IrcAddress = b.cfg.Addr
	client.TLS = !b.cfg.Insecure

	var (
		joined    atomic.Bool
		abortOnce sync.Once
		abortErr  error
	)
	aborted := make(chan struct{})
	abort := func(err error) {
		abortOnce.Do(func() {
			abortErr = err
			close(aborted)
		})
	}

	client.OnSelfJoinMessage(func(m twitch.UserJoinMessage) {
		if !sameChannel(m.Channel, ch) || !joined.CompareAndSwap(false, true) {
			return
		}
		b.log.Printf("joined #%s", ch)
		q.Push(Event{Kind: EventJoined})
	})
	client.OnNoticeMessage(func(m twitch.NoticeMessage) {
		if !joined.Load() {
			abort(fmt.Errorf("%w: %s", ErrRejected, m.Message))
		}
	})
	client.OnPrivateMessage(func(m twitch.PrivateMessage) {
		if !joined.Load() || !sameChannel(m.Channel, ch) {
			return
		}
		sender := strings.TrimSpace(m.User.DisplayName)
		if sender == "" {
			sender = m.User.Name
		}
		ev := Event{Kind: EventMessage, Sender: sender, Text: m.Message}
		if !q.Push(ev) {
			b.log.Printf("queue full, dropped message from %s (dropped=%d)", ev.Sender, q.Dropped())
		}
	})
	client.Join(ch)

	done := make(chan struct{})
	defer close(done)
	go func() {
		timer := time.NewTimer(b.cfg.JoinTimeout)
		defer timer.Stop()
	wait:
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				break wait
			case <-aborted:
				break wait
			case <-timer.C:
				if !joined.Load() {
					abort(fmt.Errorf("%w: #%s", ErrJoinTimeout, ch))
					break wait
				}
			}
		}
		// Disconnect fails until the connection is up; retry until
		// Connect returns.
		retry := time.NewTicker(20 * time.Millisecond)
		defer retry.Stop()
		for client.Disconnect() != nil {
			select {
			case <-done:
				return
			case <-retry.C:
			}
		}
	}()

	err := client.Connect()
	if ctx.Err() != nil {
		return nil
	}
	select {
	case <-aborted:
		return abortErr
	default:
	}
	if joined.Load() {
		return fmt.Errorf("%w: %v", ErrConnLost, err)
	}
	return fmt.Errorf("connect %s: %w", b.cfg.Addr, err)
}

func sameChannel(got, want string) bool {
	return strings.EqualFold(strings.TrimPrefix(got, "#"), want)
}

// NormalizeChannel lowercases a channel login and strips a leading '#'. It
// returns false for names that cannot be a channel login.
func NormalizeChannel(name string) (string, bool) {
	c := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
	if c == "" || len(c) > 25 {
		return "", false
	}
	for _, r := range c {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
		default:
			return "", false
		}
	}
	return c, true
}

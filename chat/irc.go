package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"golang.org/x/time/rate"

	"github.com/onnwee/chat-tender/accounts"
)

// outbound rate limit: 750 actions per rolling 30 second window.
const (
	sendWindow = 30 * time.Second
	sendBudget = 750
)

// ircTransport adapts the gempir IRC client to the Transport contract and
// applies the outbound send throttle.
type ircTransport struct {
	client  *twitch.Client
	channel string
	limiter *rate.Limiter

	mu        sync.Mutex
	connected bool
	joined    map[string]bool

	onMessage func(Message)
	onConnect func()
	onJoin    func(string)
	onHosted  func(string, string)
	onRaid    func(string, string)
	onBanned  func(string, string)
}

// NewIRCTransport builds a Transport for one account+channel pair. The
// account's chat credential is used as the IRC password.
func NewIRCTransport(acct *accounts.Account, channel string) Transport {
	client := twitch.NewClient(acct.Username, normalizeOAuth(acct.ChatOAuth))
	t := &ircTransport{
		client:  client,
		channel: channel,
		limiter: rate.NewLimiter(rate.Every(sendWindow/sendBudget), sendBudget),
		joined:  make(map[string]bool),
	}

	client.OnConnect(func() {
		t.mu.Lock()
		t.connected = true
		fn := t.onConnect
		t.mu.Unlock()
		slog.Info("chat connected", slog.String("account", acct.Username), slog.String("channel", channel))
		if fn != nil {
			fn()
		}
	})
	client.OnSelfJoinMessage(func(m twitch.UserJoinMessage) {
		t.mu.Lock()
		t.joined[strings.ToLower(m.Channel)] = true
		fn := t.onJoin
		t.mu.Unlock()
		if fn != nil {
			fn(m.Channel)
		}
	})
	client.OnSelfPartMessage(func(m twitch.UserPartMessage) {
		t.mu.Lock()
		delete(t.joined, strings.ToLower(m.Channel))
		t.mu.Unlock()
	})
	client.OnPrivateMessage(func(m twitch.PrivateMessage) {
		// Legacy host notifications arrive as messages from the "jtv" user.
		if strings.EqualFold(m.User.Name, "jtv") {
			if hostedBy, ok := parseHostNotice(m.Message); ok {
				t.mu.Lock()
				fn := t.onHosted
				t.mu.Unlock()
				if fn != nil {
					fn(m.Channel, hostedBy)
				}
			}
			return
		}
		t.mu.Lock()
		fn := t.onMessage
		t.mu.Unlock()
		if fn != nil {
			fn(fromPrivateMessage(m))
		}
	})
	client.OnUserNoticeMessage(func(m twitch.UserNoticeMessage) {
		if m.MsgID != "raid" {
			return
		}
		raider := m.MsgParams["msg-param-displayName"]
		if raider == "" {
			raider = m.User.DisplayName
		}
		t.mu.Lock()
		fn := t.onRaid
		t.mu.Unlock()
		if fn != nil {
			fn(m.Channel, raider)
		}
	})
	client.OnClearChatMessage(func(m twitch.ClearChatMessage) {
		if m.TargetUsername == "" || m.BanDuration > 0 {
			return // chat clear or timeout, not a ban
		}
		t.mu.Lock()
		fn := t.onBanned
		t.mu.Unlock()
		if fn != nil {
			fn(m.Channel, m.TargetUsername)
		}
	})

	return t
}

func fromPrivateMessage(m twitch.PrivateMessage) Message {
	emotes := make([]string, 0, len(m.Emotes))
	for _, e := range m.Emotes {
		emotes = append(emotes, e.Name)
	}
	return Message{
		Channel:     strings.TrimPrefix(m.Channel, "#"),
		RoomID:      m.RoomID,
		UserID:      m.User.ID,
		Username:    m.User.Name,
		DisplayName: m.User.DisplayName,
		Text:        m.Message,
		Emotes:      emotes,
	}
}

// parseHostNotice extracts the hosting channel from "X is now hosting you."
func parseHostNotice(text string) (string, bool) {
	if !strings.Contains(text, "is now hosting you") {
		return "", false
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

func normalizeOAuth(token string) string {
	if token == "" || strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}

func (t *ircTransport) Connect() error {
	t.client.Join(t.channel)
	go func() {
		// gempir's Connect blocks until Disconnect; it reconnects internally
		// on transient read errors. A returned error means the session ended.
		if err := t.client.Connect(); err != nil && err != twitch.ErrClientDisconnected {
			slog.Warn("irc session ended", slog.String("channel", t.channel), slog.Any("err", err))
		}
		t.mu.Lock()
		t.connected = false
		t.joined = make(map[string]bool)
		t.mu.Unlock()
	}()
	return nil
}

func (t *ircTransport) Disconnect() error {
	err := t.client.Disconnect()
	t.mu.Lock()
	t.connected = false
	t.joined = make(map[string]bool)
	t.mu.Unlock()
	if err != nil && err != twitch.ErrConnectionIsNotOpen {
		return err
	}
	return nil
}

func (t *ircTransport) Reconnect() error {
	_ = t.Disconnect()
	return t.Connect()
}

func (t *ircTransport) Join(channel string) {
	t.client.Join(channel)
}

func (t *ircTransport) Say(ctx context.Context, channel, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	t.client.Say(channel, text)
	return nil
}

func (t *ircTransport) Ban(ctx context.Context, channel, user, reason string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	t.client.Say(channel, fmt.Sprintf("/ban %s %s", user, reason))
	return nil
}

func (t *ircTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *ircTransport) JoinedChannels() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.joined))
	for ch := range t.joined {
		out = append(out, ch)
	}
	return out
}

func (t *ircTransport) OnMessage(fn func(Message)) { t.mu.Lock(); t.onMessage = fn; t.mu.Unlock() }
func (t *ircTransport) OnConnect(fn func())        { t.mu.Lock(); t.onConnect = fn; t.mu.Unlock() }
func (t *ircTransport) OnJoin(fn func(string))     { t.mu.Lock(); t.onJoin = fn; t.mu.Unlock() }
func (t *ircTransport) OnHosted(fn func(string, string)) {
	t.mu.Lock()
	t.onHosted = fn
	t.mu.Unlock()
}
func (t *ircTransport) OnRaid(fn func(string, string)) { t.mu.Lock(); t.onRaid = fn; t.mu.Unlock() }
func (t *ircTransport) OnUserBanned(fn func(string, string)) {
	t.mu.Lock()
	t.onBanned = fn
	t.mu.Unlock()
}

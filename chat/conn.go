package chat

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/chat-tender/accounts"
	"github.com/onnwee/chat-tender/telemetry"
)

// SubscriptionToken identifies one registered callback for later removal.
// The zero value is returned by no-op subscriptions and is never registered.
type SubscriptionToken string

type messageSub struct {
	token SubscriptionToken
	cb    MessageCallback
}

type adminSub struct {
	token SubscriptionToken
	cb    AdminCallback
}

// signal is a reusable broadcast: Pulse wakes every goroutine currently
// blocked on Wait's channel.
type signal struct {
	mu sync.Mutex
	ch chan struct{}
}

func newSignal() *signal { return &signal{ch: make(chan struct{})} }

func (s *signal) Pulse() {
	s.mu.Lock()
	close(s.ch)
	s.ch = make(chan struct{})
	s.mu.Unlock()
}

func (s *signal) Wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Conn is one live chat connection for an (account, channel) pair. It owns the
// transport, the ordered subscriber lists, and the inbound dispatch.
type Conn struct {
	account *accounts.Account
	channel string
	tr      Transport

	connSignal *signal
	joinSignal *signal

	mu        sync.Mutex
	msgSubs   []messageSub
	adminSubs []adminSub
	banHooks  []adminBanHook
	closed    bool
}

type adminBanHook struct {
	id string
	fn func(user string)
}

func newConn(acct *accounts.Account, channel string, tr Transport) *Conn {
	return &Conn{
		account:    acct,
		channel:    channel,
		tr:         tr,
		connSignal: newSignal(),
		joinSignal: newSignal(),
	}
}

// start registers transport hooks and kicks off the asynchronous connect. It
// runs outside the registry lock; the slow network work must not block other
// subscriptions.
func (c *Conn) start() {
	c.tr.OnMessage(c.dispatch)
	c.tr.OnConnect(c.connSignal.Pulse)
	c.tr.OnJoin(func(string) { c.joinSignal.Pulse() })
	c.tr.OnHosted(c.shoutOut)
	c.tr.OnRaid(c.shoutOut)
	c.tr.OnUserBanned(c.notifyBanned)
	if err := c.tr.Connect(); err != nil {
		// Best effort; the supervisor retries on its next pass.
		slog.Warn("chat connect failed", slog.String("channel", c.channel), slog.Any("err", err))
	}
}

// close tears the connection down. Safe to call more than once and safe
// against concurrent dispatch: in-flight messages observe the closed flag and
// drop silently.
func (c *Conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.banHooks = nil
	c.mu.Unlock()
	if err := c.tr.Disconnect(); err != nil {
		slog.Warn("chat disconnect failed", slog.String("channel", c.channel), slog.Any("err", err))
	}
}

// Channel returns the chat channel this connection is joined to.
func (c *Conn) Channel() string { return c.channel }

// Account returns the username of the identity the connection runs under.
func (c *Conn) Account() string { return c.account.Username }

// IsConnected reports whether the transport currently has a live session.
func (c *Conn) IsConnected() bool { return c.tr.IsConnected() }

// Joined reports whether the transport is actually joined to the channel.
func (c *Conn) Joined(channel string) bool {
	for _, ch := range c.tr.JoinedChannels() {
		if strings.EqualFold(ch, channel) {
			return true
		}
	}
	return false
}

// Say sends a chat message through the connection's throttled transport.
func (c *Conn) Say(ctx context.Context, channel, text string) error {
	return c.tr.Say(ctx, channel, text)
}

// Ban issues a ban through the connection's throttled transport.
func (c *Conn) Ban(ctx context.Context, channel, user, reason string) error {
	if err := c.tr.Ban(ctx, channel, user, reason); err != nil {
		return err
	}
	telemetry.IncBan()
	return nil
}

// OnUserBanned registers a hook fired when the service confirms a ban in this
// connection's channel. The returned func unregisters the hook.
func (c *Conn) OnUserBanned(fn func(user string)) func() {
	id := uuid.NewString()
	c.mu.Lock()
	c.banHooks = append(c.banHooks, adminBanHook{id: id, fn: fn})
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.banHooks = slices.DeleteFunc(c.banHooks, func(h adminBanHook) bool { return h.id == id })
		c.mu.Unlock()
	}
}

func (c *Conn) notifyBanned(channel, user string) {
	if !strings.EqualFold(strings.TrimPrefix(channel, "#"), c.channel) {
		return
	}
	c.mu.Lock()
	hooks := slices.Clone(c.banHooks)
	c.mu.Unlock()
	for _, h := range hooks {
		h.fn(user)
	}
}

// shoutOut thanks a channel that hosts or raids us.
func (c *Conn) shoutOut(channel, who string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.tr.Say(ctx, strings.TrimPrefix(channel, "#"), "!so "+who); err != nil {
		slog.Warn("shout-out failed", slog.String("channel", channel), slog.Any("err", err))
	}
}

func (c *Conn) addMessageSub(cb MessageCallback) SubscriptionToken {
	tok := SubscriptionToken(uuid.NewString())
	c.mu.Lock()
	c.msgSubs = append(c.msgSubs, messageSub{token: tok, cb: cb})
	c.mu.Unlock()
	return tok
}

func (c *Conn) addAdminSub(cb AdminCallback) SubscriptionToken {
	tok := SubscriptionToken(uuid.NewString())
	c.mu.Lock()
	c.adminSubs = append(c.adminSubs, adminSub{token: tok, cb: cb})
	c.mu.Unlock()
	return tok
}

// removeMessageSub removes by token and reports whether the connection has no
// subscribers of either kind left.
func (c *Conn) removeMessageSub(tok SubscriptionToken) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgSubs = slices.DeleteFunc(c.msgSubs, func(s messageSub) bool { return s.token == tok })
	return len(c.msgSubs) == 0 && len(c.adminSubs) == 0
}

func (c *Conn) removeAdminSub(tok SubscriptionToken) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adminSubs = slices.DeleteFunc(c.adminSubs, func(s adminSub) bool { return s.token == tok })
	return len(c.msgSubs) == 0 && len(c.adminSubs) == 0
}

// dispatch runs the admin chain, then the message callbacks, both in
// registration order against a snapshot of the subscriber lists so concurrent
// unsubscribes don't disturb an in-flight delivery. A connection that is
// mid-teardown drops the message silently.
func (c *Conn) dispatch(msg Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	admins := slices.Clone(c.adminSubs)
	subs := slices.Clone(c.msgSubs)
	c.mu.Unlock()

	_, span := otel.Tracer("chat").Start(context.Background(), "chat.dispatch")
	span.SetAttributes(
		attribute.String("channel", c.channel),
		attribute.Int("admin_subscribers", len(admins)),
		attribute.Int("message_subscribers", len(subs)),
	)
	defer span.End()

	for _, s := range admins {
		if !c.runAdmin(s.cb, msg) {
			telemetry.IncVetoed()
			span.SetAttributes(attribute.Bool("vetoed", true))
			return
		}
	}
	for _, s := range subs {
		c.runMessage(s.cb, msg)
	}
	telemetry.IncDispatched()
}

// runAdmin isolates a single admin callback; a panic counts as pass-through so
// one faulty moderation handler can't mute the whole channel.
func (c *Conn) runAdmin(cb AdminCallback, msg Message) (cont bool) {
	cont = true
	defer func() {
		if r := recover(); r != nil {
			telemetry.IncPanic()
			slog.Error("admin callback panic", slog.String("channel", c.channel), slog.Any("panic", r))
		}
	}()
	return cb(c, msg)
}

func (c *Conn) runMessage(cb MessageCallback, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.IncPanic()
			slog.Error("message callback panic", slog.String("channel", c.channel), slog.Any("panic", r))
		}
	}()
	cb(c, msg)
}

// waitConnected blocks until the transport reports connected, the wait budget
// elapses, or ctx is done. It returns the final connected state.
func (c *Conn) waitConnected(ctx context.Context, wait time.Duration) bool {
	return c.waitFor(ctx, wait, c.connSignal, c.tr.IsConnected)
}

// waitJoined blocks until the transport is joined to the connection's channel,
// bounded like waitConnected.
func (c *Conn) waitJoined(ctx context.Context, wait time.Duration) bool {
	return c.waitFor(ctx, wait, c.joinSignal, func() bool { return c.Joined(c.channel) })
}

func (c *Conn) waitFor(ctx context.Context, wait time.Duration, sig *signal, pred func() bool) bool {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	for {
		if pred() {
			return true
		}
		wake := sig.Wait()
		if pred() {
			return true
		}
		select {
		case <-ctx.Done():
			return pred()
		case <-deadline.C:
			return pred()
		case <-wake:
		}
	}
}

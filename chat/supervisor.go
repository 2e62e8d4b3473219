package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/chat-tender/telemetry"
)

// Supervisor periodically walks the manager's connections and heals the ones
// that dropped or that report connected without actually being joined to
// their channel (an occasionally observed service quirk). Passes never
// overlap: the timer is re-armed only after a pass fully completes, and every
// per-connection check is bounded so one unresponsive connection can't stall
// the rest.
type Supervisor struct {
	Manager *Manager

	// Interval between passes; default 1s.
	Interval time.Duration
	// AckWait bounds the wait for a connected/joined acknowledgment; default 10s.
	AckWait time.Duration
	// ConnTimeout caps the total time spent on one connection; default 15s.
	ConnTimeout time.Duration
}

func (s *Supervisor) interval() time.Duration {
	if s.Interval > 0 {
		return s.Interval
	}
	return time.Second
}

func (s *Supervisor) ackWait() time.Duration {
	if s.AckWait > 0 {
		return s.AckWait
	}
	return 10 * time.Second
}

func (s *Supervisor) connTimeout() time.Duration {
	if s.ConnTimeout > 0 {
		return s.ConnTimeout
	}
	return 15 * time.Second
}

// Run blocks until ctx is done.
func (s *Supervisor) Run(ctx context.Context) {
	timer := time.NewTimer(s.interval())
	defer timer.Stop()
	slog.Info("reconnection supervisor started", slog.Duration("interval", s.interval()))
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		s.pass(ctx)
		timer.Reset(s.interval())
	}
}

func (s *Supervisor) pass(ctx context.Context) {
	for _, c := range s.Manager.Connections() {
		if ctx.Err() != nil {
			return
		}
		s.check(ctx, c)
	}
}

// check heals one connection, best effort. Failures are swallowed; the next
// pass retries.
func (s *Supervisor) check(ctx context.Context, c *Conn) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("supervisor check panic", slog.String("channel", c.channel), slog.Any("panic", r))
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, s.connTimeout())
	defer cancel()

	if !c.IsConnected() {
		telemetry.IncReconnect()
		slog.Info("reconnecting chat", slog.String("account", c.Account()), slog.String("channel", c.channel))
		if err := c.tr.Reconnect(); err != nil {
			slog.Warn("reconnect failed", slog.String("channel", c.channel), slog.Any("err", err))
			return
		}
		if !c.waitConnected(cctx, s.ackWait()) {
			// Give up this pass; retry next tick.
			return
		}
	}

	if !c.Joined(c.channel) {
		telemetry.IncRejoin()
		slog.Info("rejoining channel", slog.String("account", c.Account()), slog.String("channel", c.channel))
		c.tr.Join(c.channel)
		if !c.waitJoined(cctx, s.ackWait()) {
			slog.Warn("rejoin not acknowledged", slog.String("channel", c.channel))
		}
	}
}

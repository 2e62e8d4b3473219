package tts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/chat-tender/accounts"
	"github.com/onnwee/chat-tender/chat"
	"github.com/onnwee/chat-tender/speech"
	"github.com/onnwee/chat-tender/telemetry"
)

// SessionConfig describes one channel's speech setup.
type SessionConfig struct {
	Account *accounts.Account
	Channel string
	// Marker is the command prefix read verbatim, "!tts" when empty.
	Marker string
	Voice  string
	// Volume is 0-100.
	Volume int
	// DeviceIndex selects the audio output device, -1 for the default.
	DeviceIndex int
}

// Session reads one channel's chat aloud. Messages run through the filter
// pipeline, then render and play one at a time in arrival order. A full
// queue drops the newest message rather than blocking chat dispatch.
type Session struct {
	manager  *chat.Manager
	renderer speech.Renderer
	player   speech.Player
	pipeline *Pipeline
	acct     *accounts.Account
	channel  string
	token    chat.SubscriptionToken
	queue    chan chat.Message
	ctx      context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	cond    *sync.Cond
	current speech.Playback
	paused  bool
	closed  bool
}

const sessionQueueSize = 32

func NewSession(m *chat.Manager, renderer speech.Renderer, player speech.Player, pipeline *Pipeline, cfg SessionConfig) (*Session, error) {
	if err := renderer.SelectVoice(cfg.Voice); err != nil {
		return nil, fmt.Errorf("select voice %q: %w", cfg.Voice, err)
	}
	renderer.SetVolume(cfg.Volume)
	player.SetDevice(cfg.DeviceIndex)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		manager:  m,
		renderer: renderer,
		player:   player,
		pipeline: pipeline,
		acct:     cfg.Account,
		channel:  cfg.Channel,
		queue:    make(chan chat.Message, sessionQueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.cond = sync.NewCond(&s.mu)
	s.token = m.Subscribe(cfg.Account, cfg.Channel, s.enqueue)
	go s.run()
	return s, nil
}

func (s *Session) enqueue(_ chat.Actions, msg chat.Message) {
	select {
	case s.queue <- msg:
	default:
		slog.Warn("speech queue full, dropping message", "channel", msg.Channel, "user", msg.Username)
	}
}

func (s *Session) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.queue:
			s.speak(msg)
		}
	}
}

func (s *Session) speak(msg chat.Message) {
	r, ok := s.pipeline.Run(s.ctx, msg)
	if !ok {
		return
	}

	// Hold new utterances while paused; the in-flight one was already
	// suspended by Pause.
	s.mu.Lock()
	for s.paused && !s.closed {
		s.cond.Wait()
	}
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	audio, err := s.renderer.Speak(s.ctx, r.Text)
	if err != nil {
		slog.Error("synthesis failed", "channel", s.channel, "error", err)
		return
	}
	pb, err := s.player.Play(s.ctx, audio)
	if err != nil {
		slog.Error("playback failed", "channel", s.channel, "error", err)
		return
	}

	// Adopt the playback and re-read the pause flag in one critical section:
	// a Pause issued while Play was in flight saw current == nil and only set
	// the flag, so it is applied here.
	s.mu.Lock()
	s.current = pb
	paused := s.paused
	s.mu.Unlock()
	if paused {
		if err := pb.Pause(); err != nil {
			slog.Warn("pause failed", "channel", s.channel, "error", err)
		}
	}

	start := time.Now()
	select {
	case <-pb.Done():
		telemetry.ObserveSpoken(time.Since(start))
	case <-s.ctx.Done():
		pb.Stop()
	}

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Pause suspends the current utterance and holds queued ones until Unpause.
func (s *Session) Pause() {
	s.mu.Lock()
	s.paused = true
	cur := s.current
	s.mu.Unlock()
	if cur != nil {
		if err := cur.Pause(); err != nil {
			slog.Warn("pause failed", "channel", s.channel, "error", err)
		}
	}
}

// Unpause resumes the suspended utterance and releases the queue.
func (s *Session) Unpause() {
	s.mu.Lock()
	s.paused = false
	cur := s.current
	s.mu.Unlock()
	if cur != nil {
		if err := cur.Resume(); err != nil {
			slog.Warn("resume failed", "channel", s.channel, "error", err)
		}
	}
	s.cond.Broadcast()
}

// Close unsubscribes from chat and stops any in-flight playback. Safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cur := s.current
	s.mu.Unlock()

	s.cancel()
	s.cond.Broadcast()
	if cur != nil {
		cur.Stop()
	}
	s.manager.Unsubscribe(s.acct, s.channel, s.token)
}

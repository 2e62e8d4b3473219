// Package testutil holds shared fakes for package tests: an in-memory chat
// transport, speech doubles, and an in-memory account store.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/onnwee/chat-tender/accounts"
	"github.com/onnwee/chat-tender/chat"
	"github.com/onnwee/chat-tender/speech"
)

// FakeTransport is an in-memory chat.Transport. Tests drive it by calling
// DeliverMessage and the Set* methods; outbound traffic is recorded.
type FakeTransport struct {
	mu        sync.Mutex
	connected bool
	joined    map[string]bool

	SaidMessages []SaidMessage
	Bans         []BanRecord
	ConnectCalls int
	Reconnects   int

	onMessage    func(chat.Message)
	onConnect    func()
	onJoin       func(channel string)
	onHosted     func(channel, hostedBy string)
	onRaid       func(channel, raider string)
	onUserBanned func(channel, user string)
}

type SaidMessage struct {
	Channel string
	Text    string
}

type BanRecord struct {
	Channel string
	User    string
	Reason  string
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{joined: make(map[string]bool)}
}

func (t *FakeTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	t.ConnectCalls++
	if t.onConnect != nil {
		go t.onConnect()
	}
	return nil
}

func (t *FakeTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

func (t *FakeTransport) Reconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	t.Reconnects++
	if t.onConnect != nil {
		go t.onConnect()
	}
	return nil
}

func (t *FakeTransport) Join(channel string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.joined[strings.ToLower(channel)] = true
	if t.onJoin != nil {
		go t.onJoin(channel)
	}
}

func (t *FakeTransport) Say(_ context.Context, channel, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.SaidMessages = append(t.SaidMessages, SaidMessage{Channel: channel, Text: text})
	return nil
}

func (t *FakeTransport) Ban(_ context.Context, channel, user, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Bans = append(t.Bans, BanRecord{Channel: channel, User: user, Reason: reason})
	if t.onUserBanned != nil {
		go t.onUserBanned(channel, user)
	}
	return nil
}

func (t *FakeTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *FakeTransport) JoinedChannels() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.joined))
	for ch := range t.joined {
		out = append(out, ch)
	}
	return out
}

func (t *FakeTransport) OnMessage(fn func(chat.Message)) { t.setHook(func() { t.onMessage = fn }) }
func (t *FakeTransport) OnConnect(fn func())             { t.setHook(func() { t.onConnect = fn }) }
func (t *FakeTransport) OnJoin(fn func(channel string))  { t.setHook(func() { t.onJoin = fn }) }
func (t *FakeTransport) OnHosted(fn func(channel, hostedBy string)) {
	t.setHook(func() { t.onHosted = fn })
}
func (t *FakeTransport) OnRaid(fn func(channel, raider string)) { t.setHook(func() { t.onRaid = fn }) }
func (t *FakeTransport) OnUserBanned(fn func(channel, user string)) {
	t.setHook(func() { t.onUserBanned = fn })
}

func (t *FakeTransport) setHook(set func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set()
}

// DeliverMessage pushes an inbound message through the registered handler
// synchronously.
func (t *FakeTransport) DeliverMessage(msg chat.Message) {
	t.mu.Lock()
	fn := t.onMessage
	t.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// DeliverRaid fires the raid hook synchronously.
func (t *FakeTransport) DeliverRaid(channel, raider string) {
	t.mu.Lock()
	fn := t.onRaid
	t.mu.Unlock()
	if fn != nil {
		fn(channel, raider)
	}
}

// DeliverHosted fires the host hook synchronously.
func (t *FakeTransport) DeliverHosted(channel, hostedBy string) {
	t.mu.Lock()
	fn := t.onHosted
	t.mu.Unlock()
	if fn != nil {
		fn(channel, hostedBy)
	}
}

// DeliverUserBanned fires the ban confirmation hook synchronously.
func (t *FakeTransport) DeliverUserBanned(channel, user string) {
	t.mu.Lock()
	fn := t.onUserBanned
	t.mu.Unlock()
	if fn != nil {
		fn(channel, user)
	}
}

// SetConnected flips connectivity without firing hooks. Tests use it to
// simulate a dropped connection.
func (t *FakeTransport) SetConnected(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = v
}

// SetJoined marks channel membership without firing hooks.
func (t *FakeTransport) SetJoined(channel string, v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v {
		t.joined[strings.ToLower(channel)] = true
	} else {
		delete(t.joined, strings.ToLower(channel))
	}
}

// ReconnectCount returns how many times Reconnect was called.
func (t *FakeTransport) ReconnectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Reconnects
}

// Said returns a copy of the recorded outbound messages.
func (t *FakeTransport) Said() []SaidMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SaidMessage(nil), t.SaidMessages...)
}

// BansIssued returns a copy of the recorded ban commands.
func (t *FakeTransport) BansIssued() []BanRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]BanRecord(nil), t.Bans...)
}

// FakeRenderer records Speak calls and returns canned audio.
type FakeRenderer struct {
	mu     sync.Mutex
	Voice  string
	Volume int
	Spoken []string
}

func (r *FakeRenderer) SelectVoice(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Voice = name
	return nil
}

func (r *FakeRenderer) SetVolume(percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Volume = percent
}

func (r *FakeRenderer) Speak(_ context.Context, text string) (speech.Audio, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Spoken = append(r.Spoken, text)
	return speech.Audio{Data: []byte(text), Format: "wav"}, nil
}

// SpokenTexts returns a copy of the texts rendered so far.
func (r *FakeRenderer) SpokenTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Spoken...)
}

// FakePlayer finishes every playback immediately unless Hold is set.
type FakePlayer struct {
	mu     sync.Mutex
	Device int
	// Hold keeps playbacks open until their Release is called.
	Hold      bool
	playbacks []*FakePlayback
}

func (p *FakePlayer) SetDevice(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Device = index
}

func (p *FakePlayer) Play(_ context.Context, a speech.Audio) (speech.Playback, error) {
	pb := &FakePlayback{done: make(chan struct{}), Audio: a}
	p.mu.Lock()
	hold := p.Hold
	p.playbacks = append(p.playbacks, pb)
	p.mu.Unlock()
	if !hold {
		pb.Release()
	}
	return pb, nil
}

// Playbacks returns all playbacks started so far.
func (p *FakePlayer) Playbacks() []*FakePlayback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakePlayback(nil), p.playbacks...)
}

type FakePlayback struct {
	Audio speech.Audio

	mu      sync.Mutex
	done    chan struct{}
	Paused  bool
	Stopped bool
}

func (p *FakePlayback) Done() <-chan struct{} { return p.done }

func (p *FakePlayback) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Paused = true
	return nil
}

func (p *FakePlayback) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Paused = false
	return nil
}

func (p *FakePlayback) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Stopped = true
	p.release()
	return nil
}

// IsPaused reports the paused flag under the lock.
func (p *FakePlayback) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Paused
}

// IsStopped reports the stopped flag under the lock.
func (p *FakePlayback) IsStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Stopped
}

// Release completes the playback.
func (p *FakePlayback) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.release()
}

func (p *FakePlayback) release() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

// MemoryStore is an in-memory accounts.Store.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]accounts.Account
}

func NewMemoryStore(seed ...accounts.Account) *MemoryStore {
	s := &MemoryStore{accounts: make(map[string]accounts.Account)}
	for _, a := range seed {
		s.accounts[strings.ToLower(a.Username)] = a
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, username string) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[strings.ToLower(username)]
	if !ok {
		return nil, nil
	}
	copied := a
	return &copied, nil
}

func (s *MemoryStore) Upsert(_ context.Context, a *accounts.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(a.Username)] = *a
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]accounts.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out, nil
}

package admin

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/chat-tender/chat"
	"github.com/onnwee/chat-tender/twitchapi"
)

// botWhitelist lists service accounts that appear on public bot lists but
// are welcome in chat.
var botWhitelist = map[string]bool{
	"soundalerts": true,
	"nightbot":    true,
	"streamlabs":  true,
}

const (
	defaultMonitorInterval = 30 * time.Second
	defaultBanPace         = 2 * time.Second
	maxSweepRounds         = 5

	// hateWindow bounds the creation-time spread of a hate-follow cluster.
	hateWindow = 8 * time.Hour
	// hateClusterMin is the smallest group of same-window accounts treated
	// as a coordinated follow.
	hateClusterMin = 3
)

// BotLister reports usernames currently online as known bots.
type BotLister interface {
	OnlineBots(ctx context.Context) ([]string, error)
}

// PresenceAPI is the slice of the Twitch client the monitor needs.
type PresenceAPI interface {
	Chatters(ctx context.Context, channel string) ([]string, error)
	ChannelFollowers(ctx context.Context, token, channel string) ([]twitchapi.Follower, error)
}

// TokenSource yields an API token for an account, refreshing if needed.
type TokenSource interface {
	AccessToken(ctx context.Context, username string) (string, error)
}

// ChannelPolicy is one channel's moderation switches.
type ChannelPolicy struct {
	// Account is the identity whose connection and token moderate the
	// channel.
	Account          string
	Channel          string
	BanBots          bool
	BanHateFollowers bool
}

// BotMonitor periodically sweeps registered channels: chatters that appear
// on the public online-bot list are banned, and follower lists are scanned
// for clusters of accounts created together. Sweeps repeat until a pass
// bans nobody, so bots joining mid-sweep are still caught.
type BotMonitor struct {
	Manager *chat.Manager
	Bots    BotLister
	API     PresenceAPI
	Tokens  TokenSource
	// Interval between sweep passes, 30s when zero.
	Interval time.Duration
	// BanPace spaces consecutive ban commands, 2s when zero.
	BanPace time.Duration

	mu       sync.Mutex
	policies map[string]ChannelPolicy
}

func NewBotMonitor(m *chat.Manager, bots BotLister, api PresenceAPI, tokens TokenSource) *BotMonitor {
	return &BotMonitor{
		Manager:  m,
		Bots:     bots,
		API:      api,
		Tokens:   tokens,
		policies: make(map[string]ChannelPolicy),
	}
}

// Add registers or updates a channel's policy.
func (b *BotMonitor) Add(p ChannelPolicy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.policies[strings.ToLower(p.Channel)] = p
}

// Remove drops a channel from monitoring.
func (b *BotMonitor) Remove(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.policies, strings.ToLower(channel))
}

func (b *BotMonitor) interval() time.Duration {
	if b.Interval > 0 {
		return b.Interval
	}
	return defaultMonitorInterval
}

func (b *BotMonitor) pace() time.Duration {
	if b.BanPace > 0 {
		return b.BanPace
	}
	return defaultBanPace
}

// Run sweeps until the context is canceled. The timer re-arms only after a
// pass completes, so slow sweeps never overlap.
func (b *BotMonitor) Run(ctx context.Context) {
	timer := time.NewTimer(b.interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			b.pass(ctx)
			timer.Reset(b.interval())
		}
	}
}

func (b *BotMonitor) pass(ctx context.Context) {
	b.mu.Lock()
	policies := make([]ChannelPolicy, 0, len(b.policies))
	for _, p := range b.policies {
		policies = append(policies, p)
	}
	b.mu.Unlock()

	for _, p := range policies {
		if ctx.Err() != nil {
			return
		}
		b.sweepChannel(ctx, p)
	}
}

func (b *BotMonitor) sweepChannel(ctx context.Context, p ChannelPolicy) {
	conn := b.Manager.GetConnection(p.Channel)
	if conn == nil || !conn.IsConnected() || !conn.Joined(p.Channel) {
		return
	}
	if p.BanBots {
		b.banUntilClean(ctx, conn, p.Channel, "bot", func(ctx context.Context) ([]string, error) {
			return b.onlineBotsInChat(ctx, p.Channel)
		})
	}
	if p.BanHateFollowers {
		b.banUntilClean(ctx, conn, p.Channel, "[Bot] Hate followers", func(ctx context.Context) ([]string, error) {
			return b.hateFollowers(ctx, p)
		})
	}
}

// onlineBotsInChat intersects the public bot list (minus the whitelist)
// with the channel's chatters.
func (b *BotMonitor) onlineBotsInChat(ctx context.Context, channel string) ([]string, error) {
	bots, err := b.Bots.OnlineBots(ctx)
	if err != nil {
		return nil, err
	}
	online := make(map[string]bool, len(bots))
	for _, name := range bots {
		name = strings.ToLower(name)
		if !botWhitelist[name] {
			online[name] = true
		}
	}
	chatters, err := b.API.Chatters(ctx, channel)
	if err != nil {
		return nil, err
	}
	var targets []string
	for _, name := range chatters {
		if online[strings.ToLower(name)] {
			targets = append(targets, name)
		}
	}
	return targets, nil
}

// hateFollowers finds runs of consecutive followers whose accounts were
// created on the same day within hateWindow of each other. Runs of
// hateClusterMin or more are treated as a coordinated hate follow.
func (b *BotMonitor) hateFollowers(ctx context.Context, p ChannelPolicy) ([]string, error) {
	token, err := b.Tokens.AccessToken(ctx, p.Account)
	if err != nil {
		return nil, err
	}
	followers, err := b.API.ChannelFollowers(ctx, token, p.Channel)
	if err != nil {
		return nil, err
	}
	var targets []string
	for _, cluster := range hateClusters(followers) {
		for _, f := range cluster {
			targets = append(targets, f.Login)
		}
	}
	return targets, nil
}

// hateClusters walks the followers in follow order and chains only adjacent
// entries created on the same UTC day within hateWindow of the chain's first
// member. A real hate follow arrives as an unbroken burst of throwaway
// accounts; an old account anywhere in the run breaks the chain.
func hateClusters(followers []twitchapi.Follower) [][]twitchapi.Follower {
	sorted := append([]twitchapi.Follower(nil), followers...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FollowedAt.After(sorted[j].FollowedAt)
	})

	var clusters [][]twitchapi.Follower
	var chain []twitchapi.Follower
	flush := func() {
		if len(chain) >= hateClusterMin {
			clusters = append(clusters, chain)
		}
		chain = nil
	}
	for _, f := range sorted {
		if f.CreatedAt.IsZero() {
			flush()
			continue
		}
		if len(chain) > 0 && sameCreationBurst(chain[0], f) {
			chain = append(chain, f)
			continue
		}
		flush()
		chain = []twitchapi.Follower{f}
	}
	flush()
	return clusters
}

func sameCreationBurst(head, f twitchapi.Follower) bool {
	a, b := head.CreatedAt.UTC(), f.CreatedAt.UTC()
	if a.Year() != b.Year() || a.YearDay() != b.YearDay() {
		return false
	}
	d := b.Sub(a)
	if d < 0 {
		d = -d
	}
	return d <= hateWindow
}

// banUntilClean bans every target, repeating the sweep while bans were
// issued or confirmed mid-pass, up to maxSweepRounds rounds.
func (b *BotMonitor) banUntilClean(ctx context.Context, conn *chat.Conn, channel, reason string, targets func(context.Context) ([]string, error)) {
	banned := make(map[string]bool)
	for round := 0; round < maxSweepRounds; round++ {
		var sawFresh atomic.Bool
		remove := conn.OnUserBanned(func(string) { sawFresh.Store(true) })

		names, err := targets(ctx)
		if err != nil {
			remove()
			slog.Warn("moderation sweep skipped", "channel", channel, "reason", reason, "error", err)
			return
		}

		issued := 0
		for _, name := range names {
			if ctx.Err() != nil {
				remove()
				return
			}
			// Re-check the gate: the connection may have dropped mid-sweep
			// and bans sent into a dead session are silently lost.
			if !conn.IsConnected() || !conn.Joined(channel) {
				remove()
				return
			}
			key := strings.ToLower(name)
			if banned[key] {
				continue
			}
			if err := conn.Ban(ctx, channel, name, reason); err != nil {
				slog.Error("ban failed", "channel", channel, "user", name, "error", err)
				continue
			}
			banned[key] = true
			issued++
			slog.Info("banned", "channel", channel, "user", name, "reason", reason)
			select {
			case <-ctx.Done():
				remove()
				return
			case <-time.After(b.pace()):
			}
		}
		remove()
		if issued == 0 && !sawFresh.Load() {
			return
		}
	}
}

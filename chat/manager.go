package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/onnwee/chat-tender/accounts"
	"github.com/onnwee/chat-tender/telemetry"
)

// TransportFactory builds the transport for a new (account, channel) pair.
type TransportFactory func(acct *accounts.Account, channel string) Transport

// TokenSource validates (refreshing if needed) and returns an API credential
// for an account. Implemented by twitchapi.TokenGateway.
type TokenSource interface {
	AccessToken(ctx context.Context, username string) (string, error)
}

// PresenceLister returns the users currently present in a channel's chat.
type PresenceLister interface {
	Chatters(ctx context.Context, channel string) ([]string, error)
}

// Chatter is one user present in one connected channel.
type Chatter struct {
	Channel  string
	Username string
}

// Manager is the process-wide registry of live chat connections, keyed by
// (account, channel). It creates a connection on the first subscription for a
// pair, fans inbound events out to subscribers, and tears the connection down
// when the last subscriber leaves. Construct exactly one and pass it around.
type Manager struct {
	// Tokens and Presence are optional; ListActiveUsers no-ops without them.
	Tokens   TokenSource
	Presence PresenceLister

	newTransport TransportFactory

	mu    sync.Mutex
	conns map[string]*Conn
}

// NewManager returns a Manager creating transports through factory.
func NewManager(factory TransportFactory) *Manager {
	return &Manager{
		newTransport: factory,
		conns:        make(map[string]*Conn),
	}
}

func connKey(username, channel string) string {
	return strings.ToLower(username) + "\x00" + strings.ToLower(channel)
}

// Subscribe attaches a message callback to the connection for the pair,
// creating the connection first if none exists. A missing account, empty
// channel, or nil callback is a silent no-op returning the zero token.
func (m *Manager) Subscribe(acct *accounts.Account, channel string, cb MessageCallback) SubscriptionToken {
	if cb == nil {
		return ""
	}
	return m.subscribe(acct, channel, func(c *Conn) SubscriptionToken { return c.addMessageSub(cb) })
}

// SubscribeAdmin attaches an admin callback, which runs before all message
// callbacks and may veto. Same no-op rules as Subscribe.
func (m *Manager) SubscribeAdmin(acct *accounts.Account, channel string, cb AdminCallback) SubscriptionToken {
	if cb == nil {
		return ""
	}
	return m.subscribe(acct, channel, func(c *Conn) SubscriptionToken { return c.addAdminSub(cb) })
}

// subscribe resolves or registers the connection for a pair and attaches the
// callback, all under the registry lock: a concurrent last-unsubscribe can
// therefore never drop the connection between lookup and attach. The slow
// connect happens later, outside the lock, in Conn.start.
func (m *Manager) subscribe(acct *accounts.Account, channel string, add func(*Conn) SubscriptionToken) SubscriptionToken {
	if acct == nil || acct.Username == "" || channel == "" {
		return ""
	}
	key := connKey(acct.Username, channel)
	m.mu.Lock()
	c, ok := m.conns[key]
	if !ok {
		c = newConn(acct, channel, m.newTransport(acct, channel))
		m.conns[key] = c
	}
	tok := add(c)
	n := len(m.conns)
	m.mu.Unlock()
	telemetry.SetActiveConnections(n)
	if !ok {
		c.start()
	}
	return tok
}

// Unsubscribe removes a message callback by token. When a connection loses
// its last subscriber of both kinds it is closed and dropped from the
// registry.
func (m *Manager) Unsubscribe(acct *accounts.Account, channel string, tok SubscriptionToken) {
	m.remove(acct, channel, tok, func(c *Conn) bool { return c.removeMessageSub(tok) })
}

// UnsubscribeAdmin removes an admin callback by token.
func (m *Manager) UnsubscribeAdmin(acct *accounts.Account, channel string, tok SubscriptionToken) {
	m.remove(acct, channel, tok, func(c *Conn) bool { return c.removeAdminSub(tok) })
}

func (m *Manager) remove(acct *accounts.Account, channel string, tok SubscriptionToken, drop func(*Conn) bool) {
	if acct == nil || acct.Username == "" || channel == "" || tok == "" {
		return
	}
	key := connKey(acct.Username, channel)
	m.mu.Lock()
	c, ok := m.conns[key]
	var emptied bool
	if ok {
		if emptied = drop(c); emptied {
			delete(m.conns, key)
		}
	}
	n := len(m.conns)
	m.mu.Unlock()
	telemetry.SetActiveConnections(n)
	if emptied {
		c.close()
	}
}

// GetConnection returns the first registered connection joined to the channel
// regardless of account, or nil when none exists.
func (m *Manager) GetConnection(channel string) *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		if strings.EqualFold(c.channel, channel) {
			return c
		}
	}
	return nil
}

// Connections snapshots the registry for iteration without holding the lock.
func (m *Manager) Connections() []*Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, c)
	}
	return out
}

// ActiveConnections returns the current registry size.
func (m *Manager) ActiveConnections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// ListActiveUsers queries presence for every registered connection
// concurrently and aggregates the results. A connection whose credentials
// can't be validated or whose presence query fails is skipped; partial
// results are fine.
func (m *Manager) ListActiveUsers(ctx context.Context) []Chatter {
	if m.Presence == nil {
		return nil
	}
	conns := m.Connections()
	results := make(chan []Chatter, len(conns))
	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			if m.Tokens != nil {
				if _, err := m.Tokens.AccessToken(ctx, c.account.Username); err != nil {
					return
				}
			}
			users, err := m.Presence.Chatters(ctx, c.channel)
			if err != nil {
				return
			}
			chatters := make([]Chatter, 0, len(users))
			for _, u := range users {
				chatters = append(chatters, Chatter{Channel: c.channel, Username: u})
			}
			results <- chatters
		}(c)
	}
	wg.Wait()
	close(results)
	var all []Chatter
	for batch := range results {
		all = append(all, batch...)
	}
	return all
}

// Shutdown closes every connection and empties the registry.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[string]*Conn)
	m.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
	telemetry.SetActiveConnections(0)
}

package chat_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/chat-tender/accounts"
	"github.com/onnwee/chat-tender/chat"
	"github.com/onnwee/chat-tender/testutil"
)

func acct(name string) *accounts.Account { return &accounts.Account{Username: name} }

func noopCB(chat.Actions, chat.Message) {}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestConcurrentSubscribeSharesOneTransport(t *testing.T) {
	var factoryCalls atomic.Int32
	m := chat.NewManager(func(*accounts.Account, string) chat.Transport {
		factoryCalls.Add(1)
		return testutil.NewFakeTransport()
	})
	t.Cleanup(m.Shutdown)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Subscribe(acct("streamer"), "somechannel", noopCB)
		}()
	}
	wg.Wait()

	if n := factoryCalls.Load(); n != 1 {
		t.Errorf("factory called %d times, want 1", n)
	}
	if n := m.ActiveConnections(); n != 1 {
		t.Errorf("active connections = %d, want 1", n)
	}
}

func TestSubscribeRacingLastUnsubscribeKeepsCallbackLive(t *testing.T) {
	trs := make(chan *testutil.FakeTransport, 256)
	m := chat.NewManager(func(*accounts.Account, string) chat.Transport {
		tr := testutil.NewFakeTransport()
		trs <- tr
		return tr
	})
	t.Cleanup(m.Shutdown)

	// Churn subscribe against last-unsubscribe. Whatever the interleaving,
	// the surviving token must sit on a registered connection that still
	// delivers messages.
	for i := 0; i < 200; i++ {
		old := m.Subscribe(acct("streamer"), "somechannel", noopCB)
		var received atomic.Int32
		var tok chat.SubscriptionToken
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			tok = m.Subscribe(acct("streamer"), "somechannel", func(chat.Actions, chat.Message) {
				received.Add(1)
			})
		}()
		go func() {
			defer wg.Done()
			m.Unsubscribe(acct("streamer"), "somechannel", old)
		}()
		wg.Wait()

		if n := m.ActiveConnections(); n != 1 {
			t.Fatalf("iteration %d: active connections = %d, want 1", i, n)
		}
		var last *testutil.FakeTransport
		for len(trs) > 0 {
			last = <-trs
		}
		last.DeliverMessage(chat.Message{Channel: "somechannel", Username: "viewer", Text: "hi"})
		if received.Load() != 1 {
			t.Fatalf("iteration %d: message not delivered to surviving subscriber", i)
		}
		m.Unsubscribe(acct("streamer"), "somechannel", tok)
	}
}

func TestPairsGetSeparateConnections(t *testing.T) {
	m := chat.NewManager(func(*accounts.Account, string) chat.Transport {
		return testutil.NewFakeTransport()
	})
	t.Cleanup(m.Shutdown)

	m.Subscribe(acct("streamer"), "channelone", noopCB)
	m.Subscribe(acct("streamer"), "channeltwo", noopCB)
	m.Subscribe(acct("other"), "channelone", noopCB)

	if n := m.ActiveConnections(); n != 3 {
		t.Errorf("active connections = %d, want 3", n)
	}
}

func TestSubscribeKeyIsCaseInsensitive(t *testing.T) {
	m := chat.NewManager(func(*accounts.Account, string) chat.Transport {
		return testutil.NewFakeTransport()
	})
	t.Cleanup(m.Shutdown)

	m.Subscribe(acct("Streamer"), "SomeChannel", noopCB)
	m.Subscribe(acct("streamer"), "somechannel", noopCB)

	if n := m.ActiveConnections(); n != 1 {
		t.Errorf("active connections = %d, want 1", n)
	}
}

func TestLastUnsubscribeClosesConnection(t *testing.T) {
	tr := testutil.NewFakeTransport()
	m := chat.NewManager(func(*accounts.Account, string) chat.Transport { return tr })

	tok1 := m.Subscribe(acct("streamer"), "somechannel", noopCB)
	tok2 := m.SubscribeAdmin(acct("streamer"), "somechannel", func(chat.Actions, chat.Message) bool { return true })
	waitUntil(t, tr.IsConnected)

	m.Unsubscribe(acct("streamer"), "somechannel", tok1)
	if n := m.ActiveConnections(); n != 1 {
		t.Fatalf("connection dropped with an admin subscriber left, active = %d", n)
	}
	m.UnsubscribeAdmin(acct("streamer"), "somechannel", tok2)
	if n := m.ActiveConnections(); n != 0 {
		t.Fatalf("active connections = %d, want 0", n)
	}
	if tr.IsConnected() {
		t.Error("transport still connected after last unsubscribe")
	}
}

func TestDispatchAfterCloseIsDropped(t *testing.T) {
	tr := testutil.NewFakeTransport()
	m := chat.NewManager(func(*accounts.Account, string) chat.Transport { return tr })

	var got atomic.Int32
	tok := m.Subscribe(acct("streamer"), "somechannel", func(chat.Actions, chat.Message) { got.Add(1) })
	m.Unsubscribe(acct("streamer"), "somechannel", tok)

	tr.DeliverMessage(chat.Message{Channel: "somechannel", Username: "bob", Text: "hi"})
	if got.Load() != 0 {
		t.Error("callback ran after close")
	}
}

func TestAdminVetoSuppressesMessageCallbacks(t *testing.T) {
	tr := testutil.NewFakeTransport()
	m := chat.NewManager(func(*accounts.Account, string) chat.Transport { return tr })
	t.Cleanup(m.Shutdown)

	var msgCalls atomic.Int32
	m.Subscribe(acct("streamer"), "somechannel", func(chat.Actions, chat.Message) { msgCalls.Add(1) })
	m.SubscribeAdmin(acct("streamer"), "somechannel", func(_ chat.Actions, msg chat.Message) bool {
		return msg.Username != "spammer"
	})

	tr.DeliverMessage(chat.Message{Channel: "somechannel", Username: "spammer", Text: "spam"})
	if msgCalls.Load() != 0 {
		t.Error("vetoed message reached a message callback")
	}

	tr.DeliverMessage(chat.Message{Channel: "somechannel", Username: "bob", Text: "hi"})
	if msgCalls.Load() != 1 {
		t.Errorf("message callbacks = %d, want 1", msgCalls.Load())
	}
}

func TestCallbacksRunInRegistrationOrder(t *testing.T) {
	tr := testutil.NewFakeTransport()
	m := chat.NewManager(func(*accounts.Account, string) chat.Transport { return tr })
	t.Cleanup(m.Shutdown)

	var mu sync.Mutex
	var order []string
	m.Subscribe(acct("streamer"), "somechannel", func(chat.Actions, chat.Message) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	m.Subscribe(acct("streamer"), "somechannel", func(chat.Actions, chat.Message) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})

	tr.DeliverMessage(chat.Message{Channel: "somechannel", Username: "bob", Text: "hi"})

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v", order)
	}
}

func TestPanickingCallbackDoesNotStopOthers(t *testing.T) {
	tr := testutil.NewFakeTransport()
	m := chat.NewManager(func(*accounts.Account, string) chat.Transport { return tr })
	t.Cleanup(m.Shutdown)

	var survived atomic.Int32
	m.Subscribe(acct("streamer"), "somechannel", func(chat.Actions, chat.Message) { panic("boom") })
	m.Subscribe(acct("streamer"), "somechannel", func(chat.Actions, chat.Message) { survived.Add(1) })
	m.SubscribeAdmin(acct("streamer"), "somechannel", func(chat.Actions, chat.Message) bool { panic("admin boom") })

	tr.DeliverMessage(chat.Message{Channel: "somechannel", Username: "bob", Text: "hi"})
	if survived.Load() != 1 {
		t.Errorf("second callback ran %d times, want 1", survived.Load())
	}
}

func TestGetConnectionMatchesCaseInsensitively(t *testing.T) {
	m := chat.NewManager(func(*accounts.Account, string) chat.Transport {
		return testutil.NewFakeTransport()
	})
	t.Cleanup(m.Shutdown)

	m.Subscribe(acct("streamer"), "SomeChannel", noopCB)
	if c := m.GetConnection("somechannel"); c == nil {
		t.Fatal("connection not found")
	}
	if c := m.GetConnection("unrelated"); c != nil {
		t.Fatal("unexpected connection for unknown channel")
	}
}

func TestRaidTriggersShoutOut(t *testing.T) {
	tr := testutil.NewFakeTransport()
	m := chat.NewManager(func(*accounts.Account, string) chat.Transport { return tr })
	t.Cleanup(m.Shutdown)

	m.Subscribe(acct("streamer"), "somechannel", noopCB)
	tr.DeliverRaid("#somechannel", "friendlystreamer")

	said := tr.Said()
	if len(said) != 1 || said[0].Text != "!so friendlystreamer" {
		t.Errorf("said = %v", said)
	}
	if said[0].Channel != "somechannel" {
		t.Errorf("channel = %q", said[0].Channel)
	}
}

func TestHostTriggersShoutOut(t *testing.T) {
	tr := testutil.NewFakeTransport()
	m := chat.NewManager(func(*accounts.Account, string) chat.Transport { return tr })
	t.Cleanup(m.Shutdown)

	m.Subscribe(acct("streamer"), "somechannel", noopCB)
	tr.DeliverHosted("somechannel", "kindhost")

	said := tr.Said()
	if len(said) != 1 || said[0].Text != "!so kindhost" {
		t.Errorf("said = %v", said)
	}
}

func TestOnUserBannedHookFiresAndUnregisters(t *testing.T) {
	tr := testutil.NewFakeTransport()
	m := chat.NewManager(func(*accounts.Account, string) chat.Transport { return tr })
	t.Cleanup(m.Shutdown)

	m.Subscribe(acct("streamer"), "somechannel", noopCB)
	c := m.GetConnection("somechannel")

	var seen []string
	remove := c.OnUserBanned(func(user string) { seen = append(seen, user) })

	tr.DeliverUserBanned("#somechannel", "troll")
	tr.DeliverUserBanned("otherchannel", "ignored")
	if len(seen) != 1 || seen[0] != "troll" {
		t.Fatalf("seen = %v", seen)
	}

	remove()
	tr.DeliverUserBanned("somechannel", "troll2")
	if len(seen) != 1 {
		t.Errorf("hook fired after removal: %v", seen)
	}
}

type fakePresence struct {
	byChannel map[string][]string
}

func (f *fakePresence) Chatters(_ context.Context, channel string) ([]string, error) {
	return f.byChannel[channel], nil
}

type staticTokens struct{}

func (staticTokens) AccessToken(context.Context, string) (string, error) { return "tok", nil }

func TestListActiveUsersAggregatesChannels(t *testing.T) {
	m := chat.NewManager(func(*accounts.Account, string) chat.Transport {
		return testutil.NewFakeTransport()
	})
	t.Cleanup(m.Shutdown)
	m.Tokens = staticTokens{}
	m.Presence = &fakePresence{byChannel: map[string][]string{
		"channelone": {"alice", "bob"},
		"channeltwo": {"carol"},
	}}

	m.Subscribe(acct("streamer"), "channelone", noopCB)
	m.Subscribe(acct("streamer"), "channeltwo", noopCB)

	users := m.ListActiveUsers(context.Background())
	if len(users) != 3 {
		t.Fatalf("users = %v", users)
	}
	counts := map[string]int{}
	for _, u := range users {
		counts[u.Channel]++
	}
	if counts["channelone"] != 2 || counts["channeltwo"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/chat-tender/accounts"
	"github.com/onnwee/chat-tender/chat"
	"github.com/onnwee/chat-tender/testutil"
)

func TestHealthz(t *testing.T) {
	s := New(":0", chat.NewManager(func(*accounts.Account, string) chat.Transport {
		return testutil.NewFakeTransport()
	}))
	rec := httptest.NewRecorder()
	s.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestStatusReportsConnections(t *testing.T) {
	m := chat.NewManager(func(*accounts.Account, string) chat.Transport {
		return testutil.NewFakeTransport()
	})
	t.Cleanup(m.Shutdown)
	m.Subscribe(&accounts.Account{Username: "streamer"}, "somechannel", func(chat.Actions, chat.Message) {})

	s := New(":0", m)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ActiveConnections != 1 {
		t.Errorf("active = %d", resp.ActiveConnections)
	}
	if len(resp.Channels) != 1 || resp.Channels[0] != "somechannel" {
		t.Errorf("channels = %v", resp.Channels)
	}
}

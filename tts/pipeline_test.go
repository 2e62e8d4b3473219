package tts

import (
	"context"
	"testing"

	"github.com/onnwee/chat-tender/chat"
)

func runPipeline(t *testing.T, p *Pipeline, msg chat.Message) (Result, bool) {
	t.Helper()
	return p.Run(context.Background(), msg)
}

func TestLinkFilterStripsURLs(t *testing.T) {
	f := NewLinkFilter()
	r, ok := f.Apply(context.Background(), chat.Message{}, Result{Text: "check this http://example.com/x?y=1 out"})
	if !ok {
		t.Fatal("unexpected veto")
	}
	if r.Text != "check this  out" {
		t.Errorf("got %q, want %q", r.Text, "check this  out")
	}
}

func TestUsernameSkipVetoesKnownBots(t *testing.T) {
	p := NewPipeline(nil, "!tts")
	if _, ok := runPipeline(t, p, chat.Message{Username: "NightBot", DisplayName: "NightBot", Text: "hello"}); ok {
		t.Error("expected veto for nightbot")
	}
	if _, ok := runPipeline(t, p, chat.Message{Username: "alice", DisplayName: "Alice", Text: "hello"}); !ok {
		t.Error("unexpected veto for regular user")
	}
}

func TestUsernameSkipMatchesDisplayName(t *testing.T) {
	p := NewPipeline(nil, "!tts")
	// The skip list keys on what viewers see, the display name.
	if _, ok := runPipeline(t, p, chat.Message{Username: "nb_relay", DisplayName: "NightBot", Text: "hello"}); ok {
		t.Error("expected veto for nightbot display name")
	}
	if _, ok := runPipeline(t, p, chat.Message{Username: "nightbot", Text: "hello"}); ok {
		t.Error("expected veto when only username is set")
	}
}

func TestCommandFilterMarkerReadVerbatim(t *testing.T) {
	p := NewPipeline(nil, "!tts")
	r, ok := runPipeline(t, p, chat.Message{Username: "bob", DisplayName: "Bob", Text: "!tts hello there"})
	if !ok {
		t.Fatal("unexpected veto")
	}
	if r.Text != "hello there" {
		t.Errorf("got %q, want %q", r.Text, "hello there")
	}
}

func TestCommandFilterAttributesSpeaker(t *testing.T) {
	p := NewPipeline(nil, "!tts")
	r, ok := runPipeline(t, p, chat.Message{Username: "bob", DisplayName: "Bob", Text: "hello there"})
	if !ok {
		t.Fatal("unexpected veto")
	}
	if r.Text != "Bob says hello there" {
		t.Errorf("got %q, want %q", r.Text, "Bob says hello there")
	}
}

func TestEmptyAfterLinkStripIsVetoed(t *testing.T) {
	p := NewPipeline(nil, "!tts")
	if _, ok := runPipeline(t, p, chat.Message{Username: "bob", DisplayName: "Bob", Text: "https://example.com"}); ok {
		t.Error("expected veto for link-only message")
	}
}

func TestEmoteDedupKeepsFirstTwo(t *testing.T) {
	f := NewEmoteDedupFilter(nil)
	msg := chat.Message{Emotes: []string{"KEKW"}}
	r, ok := f.Apply(context.Background(), msg, Result{Text: "KEKW KEKW KEKW hello"})
	if !ok {
		t.Fatal("unexpected veto")
	}
	if r.Text != "KEKW KEKW hello" {
		t.Errorf("got %q, want %q", r.Text, "KEKW KEKW hello")
	}
}

func TestEmoteDedupColonWrapped(t *testing.T) {
	f := NewEmoteDedupFilter(nil)
	r, _ := f.Apply(context.Background(), chat.Message{}, Result{Text: ":kappa: :kappa: :kappa: fine"})
	if r.Text != ":kappa: :kappa: fine" {
		t.Errorf("got %q", r.Text)
	}
}

func TestEmoteDedupNonASCIISymbols(t *testing.T) {
	f := NewEmoteDedupFilter(nil)
	r, _ := f.Apply(context.Background(), chat.Message{}, Result{Text: "wow 🔥🔥🔥 nice"})
	if r.Text != "wow 🔥🔥 nice" {
		t.Errorf("got %q", r.Text)
	}
}

func TestEmoteDedupCaseInsensitiveIdentity(t *testing.T) {
	f := NewEmoteDedupFilter(nil)
	msg := chat.Message{Emotes: []string{"KEKW"}}
	r, _ := f.Apply(context.Background(), msg, Result{Text: "KEKW kekw Kekw done"})
	if r.Text != "KEKW kekw done" {
		t.Errorf("got %q", r.Text)
	}
}

func TestPhoneticSpeakerReplacement(t *testing.T) {
	f := NewPhoneticFilter()
	r, _ := f.Apply(context.Background(), chat.Message{}, Result{Speaker: "IsDBest", Text: "hi"})
	if r.Speaker != "is-dee-best" {
		t.Errorf("speaker = %q", r.Speaker)
	}
}

func TestPhoneticWordReplacement(t *testing.T) {
	f := NewPhoneticFilter()
	r, _ := f.Apply(context.Background(), chat.Message{}, Result{Speaker: "Bob", Text: "that is so UwU"})
	if r.Text != "that is so ooh Wu" {
		t.Errorf("text = %q", r.Text)
	}
}

func TestCommandFilterMarkerCaseInsensitive(t *testing.T) {
	p := NewPipeline(nil, "!tts")
	r, ok := runPipeline(t, p, chat.Message{Username: "bob", DisplayName: "Bob", Text: "!TTS shouty request"})
	if !ok {
		t.Fatal("unexpected veto")
	}
	if r.Text != "shouty request" {
		t.Errorf("got %q", r.Text)
	}
}

func TestCommandFilterMarkerAloneIsVetoed(t *testing.T) {
	p := NewPipeline(nil, "!tts")
	if _, ok := runPipeline(t, p, chat.Message{Username: "bob", DisplayName: "Bob", Text: "!tts"}); ok {
		t.Error("expected veto for bare marker")
	}
}

func TestCleanMessageOnlyGainsSpeakerPrefix(t *testing.T) {
	p := NewPipeline(nil, "!tts")
	r, ok := runPipeline(t, p, chat.Message{Username: "alice", DisplayName: "Alice", Text: "what a great run"})
	if !ok {
		t.Fatal("unexpected veto")
	}
	if r.Text != "Alice says what a great run" {
		t.Errorf("got %q", r.Text)
	}
}

func TestCustomMarker(t *testing.T) {
	p := NewPipeline(nil, "!speak")
	r, ok := runPipeline(t, p, chat.Message{Username: "bob", DisplayName: "Bob", Text: "!speak read me"})
	if !ok {
		t.Fatal("unexpected veto")
	}
	if r.Text != "read me" {
		t.Errorf("got %q", r.Text)
	}
}

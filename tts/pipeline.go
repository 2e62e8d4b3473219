// Package tts prepares chat messages for speech synthesis. A Pipeline runs a
// message through an ordered list of filters that scrub links, drop known bot
// accounts, dampen emote spam, and apply phonetic fixes, then a Session
// renders and plays the surviving text serially.
package tts

import (
	"context"

	"github.com/onnwee/chat-tender/chat"
)

// Result is the utterance a pipeline produces from a chat message.
type Result struct {
	// Speaker is the (possibly phonetically adjusted) display name of the
	// message author.
	Speaker string
	// Text is the text to synthesize.
	Text string
}

// Filter transforms an utterance in flight. Returning false vetoes the
// message entirely; no later filter runs and nothing is spoken.
type Filter interface {
	Apply(ctx context.Context, msg chat.Message, r Result) (Result, bool)
}

// Pipeline runs filters in order over each message.
type Pipeline struct {
	Filters []Filter
}

// NewPipeline builds the standard filter chain. The dedup filter is optional;
// pass nil to skip third-party emote damping. Marker is the chat command that
// addresses the synthesizer directly ("!tts" by default).
func NewPipeline(dedup *EmoteDedupFilter, marker string) *Pipeline {
	p := &Pipeline{Filters: []Filter{
		NewUsernameSkipFilter(),
		NewLinkFilter(),
	}}
	if dedup != nil {
		p.Filters = append(p.Filters, dedup)
	}
	p.Filters = append(p.Filters,
		NewPhoneticFilter(),
		&CommandFilter{Marker: marker},
	)
	return p
}

// Run produces the utterance for a message, or false when any filter vetoed
// it.
func (p *Pipeline) Run(ctx context.Context, msg chat.Message) (Result, bool) {
	r := Result{Speaker: msg.DisplayName, Text: msg.Text}
	if r.Speaker == "" {
		r.Speaker = msg.Username
	}
	for _, f := range p.Filters {
		var ok bool
		if r, ok = f.Apply(ctx, msg, r); !ok {
			return Result{}, false
		}
	}
	return r, true
}

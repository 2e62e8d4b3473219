package tts

import (
	"context"
	"strings"
	"unicode"

	"github.com/onnwee/chat-tender/chat"
	"github.com/onnwee/chat-tender/emotes"
)

// EmoteDedupFilter dampens emote spam: each distinct emote (platform, BTTV,
// FFZ, or :colon-wrapped:) and each distinct non-ASCII symbol may appear at
// most MaxRepeats times per message; further repeats are dropped. Emote
// tokens and symbols share one occurrence budget per identity.
type EmoteDedupFilter struct {
	Catalog *emotes.Catalog
	// MaxRepeats defaults to 2.
	MaxRepeats int
}

func NewEmoteDedupFilter(catalog *emotes.Catalog) *EmoteDedupFilter {
	return &EmoteDedupFilter{Catalog: catalog}
}

func (f *EmoteDedupFilter) Apply(ctx context.Context, msg chat.Message, r Result) (Result, bool) {
	max := f.MaxRepeats
	if max <= 0 {
		max = 2
	}

	known := make(map[string]bool, len(msg.Emotes))
	for _, e := range msg.Emotes {
		known[strings.ToLower(e)] = true
	}
	if f.Catalog != nil {
		for _, e := range f.Catalog.BTTVEmotes(ctx, msg.RoomID) {
			known[e] = true
		}
		for _, e := range f.Catalog.FFZEmotes(ctx, msg.Channel) {
			known[e] = true
		}
	}

	counts := make(map[string]int)
	var kept []string
	for _, tok := range strings.Fields(r.Text) {
		key := strings.ToLower(tok)
		if known[key] || isColonWrapped(tok) {
			counts[key]++
			if counts[key] <= max {
				kept = append(kept, tok)
			}
			continue
		}
		if cleaned := trimRepeatedSymbols(tok, counts, max); cleaned != "" {
			kept = append(kept, cleaned)
		}
	}
	r.Text = strings.Join(kept, " ")
	return r, true
}

func isColonWrapped(tok string) bool {
	return len(tok) > 2 && strings.HasPrefix(tok, ":") && strings.HasSuffix(tok, ":")
}

// trimRepeatedSymbols drops non-ASCII runes whose identity already exhausted
// its budget; ASCII runes pass through untouched.
func trimRepeatedSymbols(tok string, counts map[string]int, max int) string {
	var b strings.Builder
	for _, rn := range tok {
		if rn > unicode.MaxASCII {
			key := string(rn)
			counts[key]++
			if counts[key] > max {
				continue
			}
		}
		b.WriteRune(rn)
	}
	return b.String()
}

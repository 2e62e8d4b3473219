package tts

import (
	"context"
	"regexp"
	"strings"

	"github.com/onnwee/chat-tender/chat"
)

// urlPattern matches http(s) URLs, including bare query strings and trailing
// path segments.
var urlPattern = regexp.MustCompile(`(https?:\/\/(www\.)?)+[-a-zA-Z0-9@:%._\+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_\+.~#?&//=,]*)`)

// LinkFilter strips URLs from the text so the synthesizer never reads them
// aloud.
type LinkFilter struct{}

func NewLinkFilter() *LinkFilter { return &LinkFilter{} }

func (*LinkFilter) Apply(_ context.Context, _ chat.Message, r Result) (Result, bool) {
	r.Text = urlPattern.ReplaceAllString(r.Text, "")
	return r, true
}

// UsernameSkipFilter vetoes messages from accounts that should never be read
// aloud, chiefly well-known service bots.
type UsernameSkipFilter struct {
	skip map[string]bool
}

func NewUsernameSkipFilter(extra ...string) *UsernameSkipFilter {
	f := &UsernameSkipFilter{skip: map[string]bool{
		"streamlabs":   true,
		"nightbot":     true,
		"nullinside":   true,
		"robotbyblyss": true,
	}}
	for _, name := range extra {
		f.skip[strings.ToLower(name)] = true
	}
	return f
}

func (f *UsernameSkipFilter) Apply(_ context.Context, msg chat.Message, r Result) (Result, bool) {
	name := msg.DisplayName
	if name == "" {
		name = msg.Username
	}
	if f.skip[strings.ToLower(name)] {
		return Result{}, false
	}
	return r, true
}

// CommandFilter finalizes the spoken text. Messages addressed to the
// synthesizer with the marker command are read verbatim without attribution;
// everything else is prefixed with "<speaker> says". Messages left empty by
// earlier filters are vetoed.
type CommandFilter struct {
	// Marker is the command prefix, "!tts" when empty.
	Marker string
}

func (f *CommandFilter) Apply(_ context.Context, _ chat.Message, r Result) (Result, bool) {
	marker := f.Marker
	if marker == "" {
		marker = "!tts"
	}
	text := strings.TrimSpace(r.Text)
	if hasMarker(text, marker) {
		text = strings.TrimSpace(text[len(marker):])
		if text == "" {
			return Result{}, false
		}
		r.Text = text
		return r, true
	}
	if text == "" {
		return Result{}, false
	}
	r.Text = r.Speaker + " says " + text
	return r, true
}

// hasMarker reports whether text starts with the marker as a whole
// case-insensitive word.
func hasMarker(text, marker string) bool {
	if len(text) < len(marker) || !strings.EqualFold(text[:len(marker)], marker) {
		return false
	}
	return len(text) == len(marker) || text[len(marker)] == ' '
}

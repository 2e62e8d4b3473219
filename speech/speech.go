// Package speech defines the synthesis and playback contracts used by the
// text-to-speech sessions, plus command-line backed implementations that
// shell out to an external synthesizer and audio player.
package speech

import (
	"context"
	"strings"
)

// Renderer turns text into synthesized audio.
type Renderer interface {
	// SelectVoice picks the voice used by subsequent Speak calls. An empty
	// name keeps the renderer's default voice.
	SelectVoice(name string) error
	// SetVolume sets the output volume, clamped to 0-100.
	SetVolume(percent int)
	// Speak synthesizes the text and returns the rendered audio.
	Speak(ctx context.Context, text string) (Audio, error)
}

// Audio is a rendered utterance ready for playback.
type Audio struct {
	// Data holds the encoded audio bytes.
	Data []byte
	// Format names the encoding, e.g. "wav".
	Format string
}

// Player plays rendered audio on an output device.
type Player interface {
	// Play starts playback and returns immediately. The returned Playback
	// reports completion on its Done channel.
	Play(ctx context.Context, a Audio) (Playback, error)
	// SetDevice selects the output device by index. Index -1 means the
	// system default.
	SetDevice(index int)
}

// Playback is a single in-flight utterance.
type Playback interface {
	// Done is closed when the utterance finished or was stopped.
	Done() <-chan struct{}
	Pause() error
	Resume() error
	Stop() error
}

// ResolveDeviceIndex finds the index of the output device whose name
// contains the requested name (case insensitive), or -1 for the default
// device when no name is given or nothing matches.
func ResolveDeviceIndex(name string, devices []string) int {
	if name == "" {
		return -1
	}
	want := strings.ToLower(name)
	for i, d := range devices {
		if strings.Contains(strings.ToLower(d), want) {
			return i
		}
	}
	return -1
}

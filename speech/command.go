package speech

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// CommandRenderer synthesizes speech by invoking an external TTS binary
// (espeak-ng compatible flags) and capturing its WAV output on stdout.
type CommandRenderer struct {
	// Binary is the synthesizer executable. Defaults to "espeak-ng".
	Binary string

	mu     sync.Mutex
	voice  string
	volume int
}

func NewCommandRenderer() *CommandRenderer {
	return &CommandRenderer{Binary: "espeak-ng", volume: 100}
}

func (r *CommandRenderer) SelectVoice(name string) error {
	r.mu.Lock()
	r.voice = name
	r.mu.Unlock()
	return nil
}

func (r *CommandRenderer) SetVolume(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	r.mu.Lock()
	r.volume = percent
	r.mu.Unlock()
}

func (r *CommandRenderer) Speak(ctx context.Context, text string) (Audio, error) {
	r.mu.Lock()
	voice, volume := r.voice, r.volume
	r.mu.Unlock()

	bin := r.Binary
	if bin == "" {
		bin = "espeak-ng"
	}
	// espeak amplitude runs 0-200; map percent onto it.
	args := []string{"--stdout", "-a", strconv.Itoa(volume * 2)}
	if voice != "" {
		args = append(args, "-v", voice)
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, bin, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Audio{}, fmt.Errorf("synthesize: %w (%s)", err, stderr.String())
	}
	return Audio{Data: out.Bytes(), Format: "wav"}, nil
}

// OutputDevices lists ALSA playback devices by parsing `aplay -l`. Best
// effort: a missing binary yields an empty list and playback falls back to
// the default device.
func OutputDevices(ctx context.Context) []string {
	out, err := exec.CommandContext(ctx, "aplay", "-l").Output()
	if err != nil {
		return nil
	}
	return parseDeviceList(string(out))
}

func parseDeviceList(out string) []string {
	var devices []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "card ") {
			devices = append(devices, strings.TrimSpace(line))
		}
	}
	return devices
}

// CommandPlayer plays audio by piping it to an external player binary.
// Pause and resume use SIGSTOP/SIGCONT on the player process.
type CommandPlayer struct {
	// Binary is the player executable. Defaults to "aplay".
	Binary string

	mu     sync.Mutex
	device int
}

func NewCommandPlayer() *CommandPlayer {
	return &CommandPlayer{Binary: "aplay", device: -1}
}

func (p *CommandPlayer) SetDevice(index int) {
	p.mu.Lock()
	p.device = index
	p.mu.Unlock()
}

func (p *CommandPlayer) Play(ctx context.Context, a Audio) (Playback, error) {
	p.mu.Lock()
	device := p.device
	p.mu.Unlock()

	bin := p.Binary
	if bin == "" {
		bin = "aplay"
	}
	var args []string
	if device >= 0 {
		args = append(args, "-D", fmt.Sprintf("plughw:%d", device))
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = bytes.NewReader(a.Data)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start player: %w", err)
	}
	pb := &commandPlayback{cmd: cmd, done: make(chan struct{})}
	go func() {
		defer close(pb.done)
		if err := cmd.Wait(); err != nil {
			pb.mu.Lock()
			stopped := pb.stopped
			pb.mu.Unlock()
			if !stopped {
				slog.Warn("playback exited with error", "error", err)
			}
		}
	}()
	return pb, nil
}

type commandPlayback struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	stopped bool
}

func (p *commandPlayback) Done() <-chan struct{} { return p.done }

func (p *commandPlayback) Pause() error {
	return p.signal(syscall.SIGSTOP)
}

func (p *commandPlayback) Resume() error {
	return p.signal(syscall.SIGCONT)
}

func (p *commandPlayback) Stop() error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	select {
	case <-p.done:
		return nil
	default:
	}
	return p.cmd.Process.Kill()
}

func (p *commandPlayback) signal(sig syscall.Signal) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return p.cmd.Process.Signal(sig)
}

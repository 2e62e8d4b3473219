package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"DB_DSN", "CHANNELS_FILE", "HTTP_ADDR", "SUPERVISOR_INTERVAL", "MONITOR_INTERVAL", "BAN_PACE", "TOKEN_BROKER_URL"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ChannelsFile != "channels.yaml" {
		t.Errorf("ChannelsFile = %q, want channels.yaml", cfg.ChannelsFile)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.SupervisorInterval != time.Second {
		t.Errorf("SupervisorInterval = %v, want 1s", cfg.SupervisorInterval)
	}
	if cfg.BanPace != 2*time.Second {
		t.Errorf("BanPace = %v, want 2s", cfg.BanPace)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("SUPERVISOR_INTERVAL", "often")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid SUPERVISOR_INTERVAL")
	}
}

func TestLoadBrokerURLTrimsSlash(t *testing.T) {
	t.Setenv("TOKEN_BROKER_URL", "https://broker.example/api/")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TokenBrokerURL != "https://broker.example/api" {
		t.Errorf("TokenBrokerURL = %q", cfg.TokenBrokerURL)
	}
}

func TestLoadChannels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.yaml")
	data := `channels:
  - account: botacct
    channel: somestreamer
    read_chat: true
    voice: "Microsoft Zira"
    volume: 80
    output_device: "Speakers"
  - account: botacct
    channel: other
    ban_bots: true
    volume: 500
  - channel: missingaccount
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	chs, err := LoadChannels(path)
	if err != nil {
		t.Fatalf("LoadChannels: %v", err)
	}
	if len(chs) != 2 {
		t.Fatalf("got %d channels, want 2 (entry without account skipped)", len(chs))
	}
	if !chs[0].ReadChat || chs[0].Voice != "Microsoft Zira" || chs[0].Volume != 80 {
		t.Errorf("first channel parsed wrong: %+v", chs[0])
	}
	if chs[0].TTSMarker != "!tts" {
		t.Errorf("TTSMarker default = %q, want !tts", chs[0].TTSMarker)
	}
	if chs[1].Volume != 100 {
		t.Errorf("out-of-range volume not clamped to default: %d", chs[1].Volume)
	}
}

func TestLoadChannelsVolumeDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.yaml")
	data := `channels:
  - account: botacct
    channel: muted
    read_chat: true
    volume: 0
  - account: botacct
    channel: loud
    read_chat: true
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	chs, err := LoadChannels(path)
	if err != nil {
		t.Fatalf("LoadChannels: %v", err)
	}
	if chs[0].Volume != 0 {
		t.Errorf("explicit zero volume overridden: %d", chs[0].Volume)
	}
	if chs[1].Volume != 100 {
		t.Errorf("absent volume default = %d, want 100", chs[1].Volume)
	}
}

func TestLoadChannelsMissingFile(t *testing.T) {
	chs, err := LoadChannels(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
	if len(chs) != 0 {
		t.Fatalf("got %d channels, want 0", len(chs))
	}
}

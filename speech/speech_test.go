package speech

import "testing"

func TestResolveDeviceIndex(t *testing.T) {
	devices := []string{"Built-in Audio", "USB Headset (Logitech)", "HDMI Output"}

	cases := []struct {
		name string
		want int
	}{
		{"", -1},
		{"headset", 1},
		{"HDMI", 2},
		{"built-in audio", 0},
		{"nonexistent", -1},
	}
	for _, tc := range cases {
		if got := ResolveDeviceIndex(tc.name, devices); got != tc.want {
			t.Errorf("ResolveDeviceIndex(%q) = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestParseDeviceList(t *testing.T) {
	out := "**** List of PLAYBACK Hardware Devices ****\n" +
		"card 0: PCH [HDA Intel PCH], device 0: ALC887 Analog [ALC887 Analog]\n" +
		"  Subdevices: 1/1\n" +
		"card 1: Headset [USB Headset], device 0: USB Audio [USB Audio]\n"
	devices := parseDeviceList(out)
	if len(devices) != 2 {
		t.Fatalf("devices = %v", devices)
	}
	if ResolveDeviceIndex("usb headset", devices) != 1 {
		t.Errorf("expected headset at index 1, got %d", ResolveDeviceIndex("usb headset", devices))
	}
}

func TestRendererVolumeClamped(t *testing.T) {
	r := NewCommandRenderer()
	r.SetVolume(150)
	if r.volume != 100 {
		t.Errorf("volume = %d, want 100", r.volume)
	}
	r.SetVolume(-5)
	if r.volume != 0 {
		t.Errorf("volume = %d, want 0", r.volume)
	}
}

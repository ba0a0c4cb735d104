package runtime

import "testing"

func TestFirstOrEmpty(t *testing.T) {
	if got := firstOrEmpty(nil); got != "" {
		t.Errorf("firstOrEmpty(nil) = %q, want empty", got)
	}
	if got := firstOrEmpty([]string{"/sandbox-abc", "/alias"}); got != "/sandbox-abc" {
		t.Errorf("firstOrEmpty = %q, want /sandbox-abc", got)
	}
}

func TestStripDockerFrames(t *testing.T) {
	frame := func(streamType byte, payload string) []byte {
		hdr := []byte{streamType, 0, 0, 0, 0, 0, 0, byte(len(payload))}
		return append(hdr, payload...)
	}

	raw := append(frame(1, "hello "), frame(2, "world")...)
	got := stripDockerFrames(raw)
	if got != "hello world" {
		t.Errorf("stripDockerFrames = %q, want %q", got, "hello world")
	}
}

func TestStripDockerFrames_ShortTrailingBytes(t *testing.T) {
	got := stripDockerFrames([]byte{1, 2, 3})
	if got != string([]byte{1, 2, 3}) {
		t.Errorf("stripDockerFrames on short input = %q", got)
	}
}

func TestStripDockerFrames_Empty(t *testing.T) {
	if got := stripDockerFrames(nil); got != "" {
		t.Errorf("stripDockerFrames(nil) = %q, want empty", got)
	}
}

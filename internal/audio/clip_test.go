package audio

import (
	"context"
	"testing"
	"time"
)

const testRate = 8000

func ramp(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(i + 1)
	}
	return s
}

func TestSilence(t *testing.T) {
	c := Silence(30*time.Second, testRate)
	if c.Len() != 30*testRate {
		t.Fatalf("Len() = %d, want %d", c.Len(), 30*testRate)
	}
	if c.Duration() != 30*time.Second {
		t.Errorf("Duration() = %v, want 30s", c.Duration())
	}
	for i, s := range c.Samples() {
		if s != 0 {
			t.Fatalf("sample %d = %d, want 0", i, s)
		}
	}
}

func TestNewClip_CopiesInput(t *testing.T) {
	src := []int16{1, 2, 3}
	c := NewClip(src, testRate)
	src[0] = 99
	if c.Samples()[0] != 1 {
		t.Errorf("clip shares memory with its input")
	}
}

func TestConcat(t *testing.T) {
	a := NewClip([]int16{1, 2}, testRate)
	b := NewClip([]int16{3}, testRate)
	c := NewClip([]int16{4, 5}, testRate)

	out, err := Concat(testRate, a, b, c)
	if err != nil {
		t.Fatalf("Concat() error = %v", err)
	}
	want := []int16{1, 2, 3, 4, 5}
	got := out.Samples()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestConcat_RateMismatch(t *testing.T) {
	a := NewClip([]int16{1}, testRate)
	b := NewClip([]int16{1}, 16000)
	if _, err := Concat(testRate, a, b); err == nil {
		t.Fatal("expected error for mismatched sample rates")
	}
}

func TestLoopTo(t *testing.T) {
	c := NewClip([]int16{1, 2, 3}, testRate)

	out := c.LoopTo(8).Samples()
	want := []int16{1, 2, 3, 1, 2, 3, 1, 2}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, out[i], want[i])
		}
	}

	if got := c.LoopTo(2).Len(); got != 2 {
		t.Errorf("LoopTo(2) truncation gave %d samples", got)
	}
	if got := NewClip(nil, testRate).LoopTo(5).Len(); got != 5 {
		t.Errorf("empty clip LoopTo(5) gave %d samples", got)
	}
}

func TestGain(t *testing.T) {
	c := NewClip([]int16{10000, -10000, 0}, testRate)

	out := c.Gain(-20).Samples()
	want := []int16{1000, -1000, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, out[i], want[i])
		}
	}

	if c.Samples()[0] != 10000 {
		t.Errorf("Gain mutated its receiver")
	}

	loud := NewClip([]int16{30000}, testRate).Gain(12).Samples()
	if loud[0] != 32767 {
		t.Errorf("boosted sample = %d, want clamp to 32767", loud[0])
	}
}

func TestOverlay_KeepsForegroundLength(t *testing.T) {
	fg := NewClip([]int16{100, 100, 100, 100}, testRate)

	longer := NewClip([]int16{1, 1, 1, 1, 1, 1, 1}, testRate)
	out, err := fg.Overlay(longer)
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != fg.Len() {
		t.Errorf("overlay with longer background: Len() = %d, want %d", out.Len(), fg.Len())
	}
	if out.Samples()[3] != 101 {
		t.Errorf("mixed sample = %d, want 101", out.Samples()[3])
	}

	shorter := NewClip([]int16{5}, testRate)
	out, err = fg.Overlay(shorter)
	if err != nil {
		t.Fatal(err)
	}
	got := out.Samples()
	if out.Len() != fg.Len() || got[0] != 105 || got[1] != 100 {
		t.Errorf("overlay with shorter background = %v", got)
	}
}

func TestSlice_Clamps(t *testing.T) {
	c := NewClip(ramp(10), testRate)
	if got := c.Slice(-5, 3).Len(); got != 3 {
		t.Errorf("Slice(-5,3).Len() = %d", got)
	}
	if got := c.Slice(8, 50).Len(); got != 2 {
		t.Errorf("Slice(8,50).Len() = %d", got)
	}
	if got := c.Slice(6, 6).Len(); got != 0 {
		t.Errorf("Slice(6,6).Len() = %d", got)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	c := NewClip(ramp(testRate/2), testRate)

	data, err := WAVEncoder{}.Encode(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Decode(data, testRate)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if back.Len() != c.Len() {
		t.Fatalf("Len() = %d, want %d", back.Len(), c.Len())
	}
	if back.Samples()[100] != c.Samples()[100] {
		t.Errorf("sample mismatch after round trip")
	}
}

func TestDecode_ResamplesWAV(t *testing.T) {
	c := NewClip(make([]int16, 16000), 16000)
	back, err := Decode(EncodeWAV(c), testRate)
	if err != nil {
		t.Fatal(err)
	}
	if back.SampleRate() != testRate || back.Len() != testRate {
		t.Errorf("got rate=%d len=%d, want %d/%d", back.SampleRate(), back.Len(), testRate, testRate)
	}
}

func TestDecode_RejectsUnknownPayload(t *testing.T) {
	if _, err := Decode([]byte("definitely not audio"), testRate); err != ErrUnsupportedFormat {
		t.Errorf("Decode() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestNewEncoder_WAV(t *testing.T) {
	enc, ok := NewEncoder("wav", "", "")
	if !ok {
		t.Fatal("wav encoder should always be available")
	}
	if enc.Extension() != "wav" || enc.ContentType() != "audio/wav" {
		t.Errorf("unexpected encoder %T", enc)
	}

	enc, ok = NewEncoder("mp3", "/nonexistent/ffmpeg-binary", "")
	if ok || enc.Extension() != "wav" {
		t.Errorf("missing ffmpeg should fall back to wav, got %T ok=%v", enc, ok)
	}
}

package meditation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tahcohcat/gocalm-web/config"
	"github.com/tahcohcat/gocalm-web/internal/audio"
	"github.com/tahcohcat/gocalm-web/internal/script"
	"github.com/tahcohcat/gocalm-web/internal/tts"
)

const (
	testRate   = 8000
	testMarker = "now, take a moment of silence"
)

// fakeSynth returns a WAV clip of clipLen filled with a per-text value
// (1 for texts not in values).
type fakeSynth struct {
	mu      sync.Mutex
	values  map[string]int16
	delays  map[string]time.Duration
	fail    map[string]bool
	clipLen time.Duration
	block   bool
	calls   atomic.Int32
}

func newFakeSynth(clipLen time.Duration) *fakeSynth {
	return &fakeSynth{
		values:  map[string]int16{},
		delays:  map[string]time.Duration{},
		fail:    map[string]bool{},
		clipLen: clipLen,
	}
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (*tts.Audio, error) {
	f.calls.Add(1)
	f.mu.Lock()
	delay := f.delays[text]
	failing := f.fail[text]
	value, ok := f.values[text]
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failing {
		return nil, fmt.Errorf("synthesis of %q failed", text)
	}
	if !ok {
		value = 1
	}

	samples := make([]int16, audio.SamplesFor(f.clipLen, testRate))
	for i := range samples {
		samples[i] = value
	}
	return &tts.Audio{Data: audio.EncodeWAV(audio.NewClip(samples, testRate)), ContentType: "audio/wav"}, nil
}

type failingLLM struct{}

func (failingLLM) GenerateResponse(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("model offline")
}

func (failingLLM) IsModelAvailable(ctx context.Context) error { return errors.New("model offline") }

func audioConfig() config.AudioConfig {
	return config.AudioConfig{
		SampleRate:         testRate,
		SilenceSeconds:     30,
		MinDurationSeconds: 60,
		BackgroundGainDb:   -20,
		Format:             "wav",
	}
}

func newTestPipeline(synth tts.Synthesizer, acfg config.AudioConfig, timeout time.Duration) *Pipeline {
	scfg := config.ScriptConfig{Marker: testMarker, TargetMinutes: 10, MinMarkers: 3, MaxMarkers: 5}
	return NewPipeline(
		script.NewGenerator(failingLLM{}, scfg),
		script.NewSplitter(testMarker),
		NewPerSegment(synth, testRate, 4),
		NewAssembler(acfg, audio.WAVEncoder{}),
		timeout,
	)
}

const threePartScript = "Intro text. Now, take a moment of silence. Middle text. Now, take a moment of silence. Closing text."

func TestRun_ThreeSegmentScenario(t *testing.T) {
	synth := newFakeSynth(5 * time.Second)
	p := newTestPipeline(synth, audioConfig(), time.Minute)

	res, err := p.Run(context.Background(), Request{Script: threePartScript})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var got []string
	for _, e := range res.Timeline.Entries {
		if e.Kind == Silence {
			got = append(got, fmt.Sprintf("silence(%s)", e.Clip.Duration()))
		} else {
			got = append(got, "speech")
		}
	}
	want := "speech,silence(30s),speech,silence(30s),speech"
	if strings.Join(got, ",") != want {
		t.Errorf("timeline = %s, want %s", strings.Join(got, ","), want)
	}

	if res.Duration != 75*time.Second {
		t.Errorf("Duration = %s, want 75s", res.Duration)
	}
	mix, err := audio.Decode(res.Data, testRate)
	if err != nil {
		t.Fatal(err)
	}
	if mix.Len() != 75*testRate {
		t.Errorf("encoded length = %d samples, want %d", mix.Len(), 75*testRate)
	}
	if res.ContentType != "audio/wav" || len(res.SkippedSegments) != 0 {
		t.Errorf("ContentType = %q skipped = %v", res.ContentType, res.SkippedSegments)
	}
}

func TestPerSegment_OrderIgnoresCompletionTime(t *testing.T) {
	synth := newFakeSynth(time.Second)
	synth.values["First part."] = 1000
	synth.values["Second part."] = 2000
	synth.delays["First part."] = 80 * time.Millisecond

	segments := script.NewSplitter(testMarker).Split("First part. now, take a moment of silence. Second part.")
	clips, skipped, err := NewPerSegment(synth, testRate, 2).Synthesize(context.Background(), segments)
	if err != nil {
		t.Fatal(err)
	}
	if len(skipped) != 0 {
		t.Fatalf("skipped = %v", skipped)
	}

	tl := BuildTimeline(segments, clips, 0, testRate)
	mix, err := tl.Render(testRate)
	if err != nil {
		t.Fatal(err)
	}
	samples := mix.Samples()
	if samples[0] != 1000 || samples[len(samples)-1] != 2000 {
		t.Errorf("first/last sample = %d/%d, want 1000/2000", samples[0], samples[len(samples)-1])
	}
}

func TestRun_BackgroundKeepsForegroundLength(t *testing.T) {
	bgPath := filepath.Join(t.TempDir(), "background.wav")
	bg := make([]int16, 7*testRate)
	for i := range bg {
		bg[i] = 10000
	}
	if err := os.WriteFile(bgPath, audio.EncodeWAV(audio.NewClip(bg, testRate)), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := audioConfig()
	cfg.BackgroundEnabled = true
	cfg.BackgroundTrack = bgPath

	synth := newFakeSynth(5 * time.Second)
	res, err := newTestPipeline(synth, cfg, time.Minute).Run(context.Background(), Request{Script: threePartScript})
	if err != nil {
		t.Fatal(err)
	}

	mix, err := audio.Decode(res.Data, testRate)
	if err != nil {
		t.Fatal(err)
	}
	if mix.Len() != 75*testRate {
		t.Fatalf("mixed length = %d, want %d", mix.Len(), 75*testRate)
	}
	// Inside the first silence only the attenuated background is audible.
	if got := mix.Samples()[10*testRate]; got != 1000 {
		t.Errorf("background sample = %d, want 1000", got)
	}
	if got := mix.Samples()[0]; got != 1001 {
		t.Errorf("speech+background sample = %d, want 1001", got)
	}
}

func TestRun_TooShortPublishesNothing(t *testing.T) {
	cfg := audioConfig()
	cfg.SilenceSeconds = 1

	res, err := newTestPipeline(newFakeSynth(time.Second), cfg, time.Minute).Run(context.Background(), Request{Script: threePartScript})
	if !errors.Is(err, ErrTooShort) {
		t.Fatalf("Run() error = %v, want ErrTooShort", err)
	}
	if res != nil {
		t.Errorf("expected no result on failure")
	}
	if Message(err) != ErrTooShort.Error() {
		t.Errorf("Message() = %q", Message(err))
	}
}

func TestRun_AllSegmentsFail(t *testing.T) {
	synth := newFakeSynth(5 * time.Second)
	for _, text := range []string{"Intro text.", "Middle text.", "Closing text."} {
		synth.fail[text] = true
	}

	_, err := newTestPipeline(synth, audioConfig(), time.Minute).Run(context.Background(), Request{Script: threePartScript})
	if !errors.Is(err, ErrNoAudio) {
		t.Errorf("Run() error = %v, want ErrNoAudio", err)
	}
}

func TestRun_SkippedSegmentLeavesSingleSilence(t *testing.T) {
	synth := newFakeSynth(20 * time.Second)
	synth.fail["Middle text."] = true

	res, err := newTestPipeline(synth, audioConfig(), time.Minute).Run(context.Background(), Request{Script: threePartScript})
	if err != nil {
		t.Fatal(err)
	}
	if n := res.Timeline.Count(Silence); n != 1 {
		t.Errorf("silences = %d, want 1", n)
	}
	if len(res.SkippedSegments) != 1 || res.SkippedSegments[0] != 2 {
		t.Errorf("SkippedSegments = %v, want [2]", res.SkippedSegments)
	}
	if res.Duration != 70*time.Second {
		t.Errorf("Duration = %s, want 70s", res.Duration)
	}
}

func TestRun_MissingBackgroundFailsBeforeSynthesis(t *testing.T) {
	cfg := audioConfig()
	cfg.BackgroundEnabled = true
	cfg.BackgroundTrack = filepath.Join(t.TempDir(), "missing.mp3")

	synth := newFakeSynth(5 * time.Second)
	_, err := newTestPipeline(synth, cfg, time.Minute).Run(context.Background(), Request{Script: threePartScript})
	if !errors.Is(err, ErrAssetMissing) {
		t.Fatalf("Run() error = %v, want ErrAssetMissing", err)
	}
	if errors.Is(err, ErrNoAudio) {
		t.Errorf("asset failure must be distinguishable from synthesis failure")
	}
	if n := synth.calls.Load(); n != 0 {
		t.Errorf("synthesizer called %d times", n)
	}
}

func TestRun_Timeout(t *testing.T) {
	synth := newFakeSynth(5 * time.Second)
	synth.block = true

	res, err := newTestPipeline(synth, audioConfig(), 30*time.Millisecond).Run(context.Background(), Request{Script: threePartScript})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Run() error = %v, want ErrTimeout", err)
	}
	if res != nil {
		t.Errorf("expected no result on timeout")
	}
}

func TestRun_ModelFailureUsesFallbackScript(t *testing.T) {
	synth := newFakeSynth(5 * time.Second)

	res, err := newTestPipeline(synth, audioConfig(), time.Minute).Run(context.Background(), Request{Situation: "a long flight"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Script.Fallback {
		t.Fatal("expected fallback script")
	}
	if res.Script.Text != script.Fallback(testMarker, nil).Text {
		t.Errorf("script is not the sanitized fallback template")
	}
	if res.Timeline.Count(Silence) != script.CountPauses(script.NewSplitter(testMarker).Split(res.Script.Text)) {
		t.Errorf("silences do not match pauses in the fallback script")
	}
}

func TestWholeScript_SlicesProportionally(t *testing.T) {
	synth := newFakeSynth(8 * time.Second)
	segments := []script.Segment{
		{Kind: script.Spoken, Text: strings.Repeat("a", 10), Index: 0},
		{Kind: script.Pause, Index: 1},
		{Kind: script.Spoken, Text: strings.Repeat("b", 30), Index: 2},
	}

	clips, _, err := NewWholeScript(synth, testRate).Synthesize(context.Background(), segments)
	if err != nil {
		t.Fatal(err)
	}
	if clips[1] != nil {
		t.Errorf("pause should have no clip")
	}
	if clips[0].Duration() != 2*time.Second || clips[2].Duration() != 6*time.Second {
		t.Errorf("slices = %s/%s, want 2s/6s", clips[0].Duration(), clips[2].Duration())
	}
	if n := synth.calls.Load(); n != 1 {
		t.Errorf("whole-script strategy made %d calls", n)
	}
}

func TestBuildTimeline_NoMarkers(t *testing.T) {
	segments := script.NewSplitter(testMarker).Split("Just one calm paragraph.")
	clips := []*audio.Clip{audio.Silence(time.Second, testRate)}

	tl := BuildTimeline(segments, clips, 30*time.Second, testRate)
	if tl.Count(Speech) != 1 || tl.Count(Silence) != 0 {
		t.Errorf("timeline has %d speech / %d silence entries", tl.Count(Speech), tl.Count(Silence))
	}
}

func TestNewStrategy(t *testing.T) {
	synth := newFakeSynth(time.Second)
	for name, want := range map[string]string{"": "segment", "segment": "segment", "whole": "whole"} {
		s, err := NewStrategy(name, synth, testRate, 2)
		if err != nil || s.Name() != want {
			t.Errorf("NewStrategy(%q) = %v, %v", name, s, err)
		}
	}
	if _, err := NewStrategy("parallel-universe", synth, testRate, 2); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

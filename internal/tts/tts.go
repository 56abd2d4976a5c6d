package tts

import (
	"context"
	"fmt"

	"github.com/tahcohcat/gocalm-web/config"
)

// Audio is one provider response: encoded bytes exactly as returned.
type Audio struct {
	Data        []byte
	ContentType string
}

// Synthesizer turns narration text into encoded speech. Voice identity and
// prosody are fixed by the implementation; callers only supply text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Audio, error)
	Name() string
}

// NewSynthesizer builds the provider selected by tts.provider.
func NewSynthesizer(ctx context.Context, cfg *config.Config) (Synthesizer, error) {
	var (
		synth Synthesizer
		err   error
	)

	switch cfg.Tts.Provider {
	case "elevenlabs":
		synth, err = NewElevenLabs(cfg.Tts.ElevenLabs)
	case "google":
		synth, err = NewWebGoogleTTSClient(ctx, cfg.Tts.Google)
	case "openai":
		synth, err = NewOpenAITTS(cfg.OpenAI, cfg.Tts.OpenAI)
	case "silent":
		synth = NewSilentTts(16000)
	default:
		return nil, fmt.Errorf("unsupported TTS provider: %s", cfg.Tts.Provider)
	}
	if err != nil {
		return nil, err
	}
	return synth, nil
}

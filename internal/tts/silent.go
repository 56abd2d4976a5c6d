package tts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tahcohcat/gocalm-web/internal/audio"
)

// wordsPerSecond approximates an unhurried narration pace.
const wordsPerSecond = 2.5

// SilentTts returns silence as long as the text would take to read aloud.
// It needs no credentials, which makes it the provider for local runs.
type SilentTts struct {
	rate int
}

func NewSilentTts(rate int) *SilentTts {
	return &SilentTts{rate: rate}
}

func (s *SilentTts) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := len(strings.Fields(text))
	if words == 0 {
		return nil, fmt.Errorf("text cannot be empty")
	}

	d := time.Duration(float64(words) / wordsPerSecond * float64(time.Second))
	clip := audio.Silence(d, s.rate)
	return &Audio{Data: audio.EncodeWAV(clip), ContentType: "audio/wav"}, nil
}

func (s *SilentTts) Name() string {
	return "Silent"
}

package tts

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	"github.com/tahcohcat/gocalm-web/config"
	"github.com/tahcohcat/gocalm-web/internal/logger"
)

// Calm narration: a little slower and lower than the voice's default.
const (
	googleSpeakingRate = 0.9
	googlePitch        = -2.0
	googleSampleRate   = 24000
)

type WebGoogleTTS struct {
	client *texttospeech.Client
	voice  string
	logger *logger.Log
}

func NewWebGoogleTTSClient(ctx context.Context, cfg config.GoogleTtsConfig) (*WebGoogleTTS, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google TTS client: %w", err)
	}

	voice := cfg.Voice
	if voice == "" {
		voice = "en-US-Neural2-F"
	}

	return &WebGoogleTTS{
		client: client,
		voice:  voice,
		logger: logger.New(),
	}, nil
}

// Extract language code from voice name (e.g., "en-US-Neural2-F" -> "en-US")
func languageCode(voice string) string {
	parts := strings.Split(voice, "-")
	if len(parts) >= 2 {
		return fmt.Sprintf("%s-%s", parts[0], parts[1])
	}
	return "en-US"
}

func (g *WebGoogleTTS) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	req := &ttspb.SynthesizeSpeechRequest{
		Input: &ttspb.SynthesisInput{
			InputSource: &ttspb.SynthesisInput_Text{Text: text},
		},
		Voice: &ttspb.VoiceSelectionParams{
			LanguageCode: languageCode(g.voice),
			Name:         g.voice,
		},
		AudioConfig: &ttspb.AudioConfig{
			AudioEncoding:   ttspb.AudioEncoding_LINEAR16,
			SpeakingRate:    googleSpeakingRate,
			Pitch:           googlePitch,
			SampleRateHertz: googleSampleRate,
		},
	}

	g.logger.Debug(fmt.Sprintf("Generating Google TTS audio with voice: %s", g.voice))

	resp, err := g.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	if len(resp.AudioContent) == 0 {
		return nil, fmt.Errorf("empty audio content received from Google TTS")
	}

	// LINEAR16 responses carry a WAV header.
	return &Audio{Data: resp.AudioContent, ContentType: "audio/wav"}, nil
}

func (g *WebGoogleTTS) Name() string {
	return "Google Cloud Text-to-Speech"
}

func (g *WebGoogleTTS) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tahcohcat/gocalm-web/config"
	"github.com/tahcohcat/gocalm-web/internal/logger"
)

// Narration prosody is held constant so every meditation sounds like the
// same calm narrator.
const (
	elevenLabsStability       = 0.7
	elevenLabsSimilarityBoost = 0.75
	elevenLabsStyle           = 0.2
	elevenLabsOutputFormat    = "mp3_44100_128"
)

type ElevenLabs struct {
	apiKey     string
	baseURL    string
	voiceID    string
	model      string
	httpClient *http.Client
	logger     *logger.Log
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

func NewElevenLabs(cfg config.ElevenLabsConfig) (*ElevenLabs, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ElevenLabs API key is required")
	}

	voiceID, ok := ResolveVoiceID(cfg.Voice)
	if !ok {
		return nil, fmt.Errorf("unknown ElevenLabs voice %q", cfg.Voice)
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io/v1"
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &ElevenLabs{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		voiceID:    voiceID,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.New(),
	}, nil
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: e.model,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       elevenLabsStability,
			SimilarityBoost: elevenLabsSimilarityBoost,
			Style:           elevenLabsStyle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.baseURL, e.voiceID, elevenLabsOutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", e.apiKey)

	e.logger.Debug(fmt.Sprintf("Generating ElevenLabs audio with voice %s, %d chars", e.voiceID, len(text)))

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("elevenlabs API error: %s - %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio content received from ElevenLabs")
	}

	return &Audio{Data: data, ContentType: "audio/mpeg"}, nil
}

func (e *ElevenLabs) Name() string {
	return "ElevenLabs"
}

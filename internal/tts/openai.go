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

// openAISpeed slows narration slightly below the default 1.0.
const openAISpeed = 0.9

// OpenAITTS implements Synthesizer using the OpenAI audio/speech endpoint.
type OpenAITTS struct {
	apiKey     string
	baseURL    string
	model      string
	voice      string
	httpClient *http.Client
	logger     *logger.Log
}

func NewOpenAITTS(api config.OpenAIConfig, cfg config.OpenAITtsConfig) (*OpenAITTS, error) {
	if api.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	baseURL := strings.TrimSuffix(api.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &OpenAITTS{
		apiKey:     api.APIKey,
		baseURL:    baseURL,
		model:      cfg.Model,
		voice:      cfg.Voice,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.New(),
	}, nil
}

func (o *OpenAITTS) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":           o.model,
		"input":           text,
		"voice":           o.voice,
		"speed":           openAISpeed,
		"response_format": "mp3",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("openai error %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	o.logger.Debug(fmt.Sprintf("OpenAI TTS returned %d bytes in %.2fs", len(data), time.Since(start).Seconds()))
	return &Audio{Data: data, ContentType: "audio/mpeg"}, nil
}

func (o *OpenAITTS) Name() string {
	return "OpenAI TTS"
}

package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/tahcohcat/gocalm-web/config"
	"github.com/tahcohcat/gocalm-web/internal/logger"
)

const systemPrompt = "You are a calm, warm meditation guide writing a script to be read aloud. " +
	"Reply with the script text only."

// ErrEmptyResponse means the model finished without producing any text.
var ErrEmptyResponse = errors.New("ollama returned an empty script")

type Client struct {
	client *api.Client
	config *config.OllamaConfig
	logger *logger.Log
}

func NewClient(cfg *config.OllamaConfig) (*Client, error) {
	var (
		client *api.Client
		err    error
	)

	if cfg.Host != "" {
		base, perr := url.Parse(cfg.Host)
		if perr != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", cfg.Host, perr)
		}
		client = api.NewClient(base, http.DefaultClient)
	} else {
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	}

	return &Client{
		client: client,
		config: cfg,
		logger: logger.New().WithField("llm", "ollama"),
	}, nil
}

// GenerateResponse streams one script from the local model and returns the
// joined text.
func (c *Client) GenerateResponse(ctx context.Context, prompt string) (string, error) {
	stream := true
	req := &api.GenerateRequest{
		Model:  c.config.Model,
		System: systemPrompt,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": c.config.Temperature,
			"num_predict": c.config.MaxTokens,
			"top_p":       0.9,
		},
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.config.Timeout)*time.Second)
		defer cancel()
	}

	var (
		script     strings.Builder
		doneReason string
	)
	err := c.client.Generate(ctx, req, func(g api.GenerateResponse) error {
		script.WriteString(g.Response)
		if g.Done {
			doneReason = g.DoneReason
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generation failed: %w", err)
	}

	if doneReason == "length" {
		c.logger.Warn("Script was cut off at num_predict")
	}

	text := strings.TrimSpace(script.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// IsModelAvailable reports whether the configured model has been pulled.
// "llama3.2" matches "llama3.2:latest".
func (c *Client) IsModelAvailable(ctx context.Context) error {
	list, err := c.client.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		if m.Name == c.config.Model || strings.TrimSuffix(m.Name, ":latest") == c.config.Model {
			return nil
		}
		names = append(names, m.Name)
	}

	return fmt.Errorf("model %s not pulled (have %v); run `ollama pull %s`", c.config.Model, names, c.config.Model)
}

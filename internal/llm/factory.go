package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tahcohcat/gocalm-web/config"
	"github.com/tahcohcat/gocalm-web/internal/llm/ollama"
	"github.com/tahcohcat/gocalm-web/internal/llm/openai"
	"github.com/tahcohcat/gocalm-web/internal/logger"
)

type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// NewLLMClient builds the script writer selected by llm.provider.
func NewLLMClient(cfg *config.Config) (LLM, error) {
	var (
		model LLM
		err   error
	)

	switch Provider(cfg.LLM.Provider) {
	case ProviderOllama:
		model, err = ollama.NewClient(&cfg.Ollama)
	case ProviderOpenAI:
		model, err = openai.NewClient(&cfg.OpenAI)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &timed{LLM: model, provider: Provider(cfg.LLM.Provider), logger: logger.New()}, nil
}

// timed logs how long each script took to write.
type timed struct {
	LLM
	provider Provider
	logger   *logger.Log
}

func (t *timed) GenerateResponse(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := t.LLM.GenerateResponse(ctx, prompt)
	log := t.logger.WithField("provider", t.provider).WithField("elapsed", time.Since(start).Round(time.Millisecond))
	if err != nil {
		log.WithError(err).Warn("Script generation failed")
		return "", err
	}
	log.Info(fmt.Sprintf("Script generated: %d characters", len(text)))
	return text, nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Script.Marker != "now, take a moment of silence" {
		t.Errorf("Script.Marker = %q", cfg.Script.Marker)
	}
	if cfg.Audio.SilenceSeconds != 30 {
		t.Errorf("Audio.SilenceSeconds = %v, want 30", cfg.Audio.SilenceSeconds)
	}
	if cfg.Audio.BackgroundGainDb != -20 {
		t.Errorf("Audio.BackgroundGainDb = %v, want -20", cfg.Audio.BackgroundGainDb)
	}
	if cfg.Pipeline.TimeoutSeconds != 600 {
		t.Errorf("Pipeline.TimeoutSeconds = %d, want 600", cfg.Pipeline.TimeoutSeconds)
	}
	if cfg.Tts.ElevenLabs.Voice != "Rachel" {
		t.Errorf("Tts.ElevenLabs.Voice = %q, want Rachel", cfg.Tts.ElevenLabs.Voice)
	}
}

func TestLoad_FileOverridesAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
llm:
  provider: ollama
tts:
  provider: silent
audio:
  format: wav
  silence_seconds: 20
pipeline:
  strategy: whole
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOCALM_JOBS_WORKERS", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("LLM.Provider = %q", cfg.LLM.Provider)
	}
	if cfg.Audio.Format != "wav" || cfg.Audio.SilenceSeconds != 20 {
		t.Errorf("Audio = %+v", cfg.Audio)
	}
	if cfg.Pipeline.Strategy != "whole" {
		t.Errorf("Pipeline.Strategy = %q", cfg.Pipeline.Strategy)
	}
	if cfg.Jobs.Workers != 7 {
		t.Errorf("Jobs.Workers = %d, want 7", cfg.Jobs.Workers)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			LLM:      LLMConfig{Provider: "openai"},
			Tts:      TtsConfig{Provider: "silent"},
			Script:   ScriptConfig{Marker: "[PAUSE]"},
			Audio:    AudioConfig{SampleRate: 16000, Format: "wav", BackgroundGainDb: -20},
			Pipeline: PipelineConfig{Strategy: "segment"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad llm", func(c *Config) { c.LLM.Provider = "claude-local" }, true},
		{"bad tts", func(c *Config) { c.Tts.Provider = "espeak" }, true},
		{"bad strategy", func(c *Config) { c.Pipeline.Strategy = "random" }, true},
		{"bad format", func(c *Config) { c.Audio.Format = "flac" }, true},
		{"empty marker", func(c *Config) { c.Script.Marker = "  " }, true},
		{"boosted background", func(c *Config) { c.Audio.BackgroundGainDb = 3 }, true},
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }, true},
		{"bad storage backend", func(c *Config) { c.Storage.Backend = "s3" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ClampsWorkerCounts(t *testing.T) {
	c := Config{
		LLM:      LLMConfig{Provider: "openai"},
		Tts:      TtsConfig{Provider: "silent"},
		Script:   ScriptConfig{Marker: "[PAUSE]"},
		Audio:    AudioConfig{SampleRate: 16000, Format: "wav"},
		Pipeline: PipelineConfig{Strategy: "segment"},
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.Pipeline.Concurrency != 1 || c.Jobs.Workers != 1 {
		t.Errorf("got concurrency=%d workers=%d, want 1/1", c.Pipeline.Concurrency, c.Jobs.Workers)
	}
}

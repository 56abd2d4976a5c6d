package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Ollama   OllamaConfig   `mapstructure:"ollama"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Tts      TtsConfig      `mapstructure:"tts"`
	Script   ScriptConfig   `mapstructure:"script"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Credits  CreditsConfig  `mapstructure:"credits"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	SessionSecret  string   `mapstructure:"session_secret"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	TemplatesDir   string   `mapstructure:"templates_dir"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LLM provider selection
type LLMConfig struct {
	Provider string `mapstructure:"provider"` // "ollama" or "openai"
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`   // Optional, defaults to OpenAI API
	MaxTokens   int     `mapstructure:"max_tokens"` // Optional, defaults to model's max
	Temperature float64 `mapstructure:"temperature"`
	Timeout     int     `mapstructure:"timeout"`
}

type OllamaConfig struct {
	Host        string  `mapstructure:"host"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	Timeout     int     `mapstructure:"timeout"` // seconds
}

// TtsConfig selects the speech provider. Prosody is fixed per provider.
type TtsConfig struct {
	Provider   string           `mapstructure:"provider"` // "elevenlabs", "google", "openai" or "silent"
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	Google     GoogleTtsConfig  `mapstructure:"google"`
	OpenAI     OpenAITtsConfig  `mapstructure:"openai"`
}

type ElevenLabsConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Voice   string `mapstructure:"voice"` // catalog name ("Rachel") or raw voice id
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"`
}

type GoogleTtsConfig struct {
	Voice           string `mapstructure:"voice"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type OpenAITtsConfig struct {
	Model   string `mapstructure:"model"`
	Voice   string `mapstructure:"voice"`
	Timeout int    `mapstructure:"timeout"`
}

type ScriptConfig struct {
	Marker        string `mapstructure:"marker"`
	TargetMinutes int    `mapstructure:"target_minutes"`
	MinMarkers    int    `mapstructure:"min_markers"`
	MaxMarkers    int    `mapstructure:"max_markers"`
}

type AudioConfig struct {
	SampleRate         int     `mapstructure:"sample_rate"`
	SilenceSeconds     float64 `mapstructure:"silence_seconds"`
	MinDurationSeconds float64 `mapstructure:"min_duration_seconds"`
	BackgroundEnabled  bool    `mapstructure:"background_enabled"`
	BackgroundTrack    string  `mapstructure:"background_track"`
	BackgroundGainDb   float64 `mapstructure:"background_gain_db"`
	Format             string  `mapstructure:"format"` // "mp3" or "wav"
	FFmpegPath         string  `mapstructure:"ffmpeg_path"`
	Bitrate            string  `mapstructure:"bitrate"`
}

type PipelineConfig struct {
	Strategy       string `mapstructure:"strategy"` // "segment" or "whole"
	Concurrency    int    `mapstructure:"concurrency"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type JobsConfig struct {
	Workers        int  `mapstructure:"workers"`
	PollIntervalMs int  `mapstructure:"poll_interval_ms"`
	Inline         bool `mapstructure:"inline"` // run workers inside the server process
}

type StorageConfig struct {
	Backend  string `mapstructure:"backend"` // "file" or "memory"
	Dir      string `mapstructure:"dir"`
	TTLHours int    `mapstructure:"ttl_hours"` // 0 keeps artifacts forever
}

type CreditsConfig struct {
	CostPerMeditation int `mapstructure:"cost_per_meditation"`
	SignupBonus       int `mapstructure:"signup_bonus"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.session_secret", "your-secret-key-change-this-in-production")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:8080"})
	v.SetDefault("server.templates_dir", "./web/templates")

	v.SetDefault("database.path", "./gocalm.db")

	v.SetDefault("llm.provider", "openai")

	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.timeout", 60)
	v.SetDefault("openai.max_tokens", 1200)
	v.SetDefault("openai.temperature", 0.7)

	v.SetDefault("ollama.host", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3.2")
	v.SetDefault("ollama.max_tokens", 1200)
	v.SetDefault("ollama.temperature", 0.7)
	v.SetDefault("ollama.timeout", 120)

	v.SetDefault("tts.provider", "elevenlabs")
	v.SetDefault("tts.elevenlabs.base_url", "https://api.elevenlabs.io/v1")
	v.SetDefault("tts.elevenlabs.voice", "Rachel")
	v.SetDefault("tts.elevenlabs.model", "eleven_monolingual_v1")
	v.SetDefault("tts.elevenlabs.timeout", 120)
	v.SetDefault("tts.google.voice", "en-US-Neural2-F")
	v.SetDefault("tts.openai.model", "tts-1")
	v.SetDefault("tts.openai.voice", "shimmer")
	v.SetDefault("tts.openai.timeout", 120)

	v.SetDefault("script.marker", "now, take a moment of silence")
	v.SetDefault("script.target_minutes", 10)
	v.SetDefault("script.min_markers", 3)
	v.SetDefault("script.max_markers", 5)

	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.silence_seconds", 30)
	v.SetDefault("audio.min_duration_seconds", 60)
	v.SetDefault("audio.background_enabled", true)
	v.SetDefault("audio.background_track", "./static/background_music.mp3")
	v.SetDefault("audio.background_gain_db", -20)
	v.SetDefault("audio.format", "mp3")
	v.SetDefault("audio.ffmpeg_path", "ffmpeg")
	v.SetDefault("audio.bitrate", "128k")

	v.SetDefault("pipeline.strategy", "segment")
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.timeout_seconds", 600)

	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.poll_interval_ms", 1000)
	v.SetDefault("jobs.inline", true)

	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.dir", "./static/meditations")
	v.SetDefault("storage.ttl_hours", 0)

	v.SetDefault("credits.cost_per_meditation", 1)
	v.SetDefault("credits.signup_bonus", 3)

	v.SetDefault("logging.level", "info")
}

// Load reads config.yaml (and config.local.yaml on top of it) from the
// working directory or ./config, then applies GOCALM_* environment
// overrides. A missing config file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.BindEnv("openai.api_key", "GOCALM_OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("tts.elevenlabs.api_key", "GOCALM_ELEVENLABS_API_KEY", "ELEVENLABS_API_KEY")
	v.BindEnv("tts.google.credentials_file", "GOOGLE_APPLICATION_CREDENTIALS")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("llm.provider", "LLM_PROVIDER")

	v.SetEnvPrefix("GOCALM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
			// Config file not found, use defaults
		} else {
			// Local overrides (ignored by git)
			v.SetConfigName("config.local")
			v.MergeInConfig()
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unsupported llm.provider: %q", c.LLM.Provider)
	}

	switch c.Tts.Provider {
	case "elevenlabs", "google", "openai", "silent":
	default:
		return fmt.Errorf("unsupported tts.provider: %q", c.Tts.Provider)
	}

	switch c.Pipeline.Strategy {
	case "segment", "whole":
	default:
		return fmt.Errorf("unsupported pipeline.strategy: %q", c.Pipeline.Strategy)
	}

	switch c.Audio.Format {
	case "mp3", "wav":
	default:
		return fmt.Errorf("unsupported audio.format: %q", c.Audio.Format)
	}

	switch c.Storage.Backend {
	case "", "file", "memory":
	default:
		return fmt.Errorf("unsupported storage.backend: %q", c.Storage.Backend)
	}

	if strings.TrimSpace(c.Script.Marker) == "" {
		return fmt.Errorf("script.marker must not be empty")
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	if c.Audio.SilenceSeconds < 0 {
		return fmt.Errorf("audio.silence_seconds must not be negative")
	}
	if c.Audio.BackgroundGainDb > 0 {
		return fmt.Errorf("audio.background_gain_db must not boost the background (got %.1f)", c.Audio.BackgroundGainDb)
	}
	if c.Pipeline.Concurrency < 1 {
		c.Pipeline.Concurrency = 1
	}
	if c.Jobs.Workers < 1 {
		c.Jobs.Workers = 1
	}

	return nil
}

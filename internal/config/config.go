package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Realtime    RealtimeConfig
	Completions CompletionsConfig
	Guardrail   GuardrailConfig
}

type RealtimeConfig struct {
	APIKey             string `envconfig:"OPENAI_API_KEY" required:"true"`
	BaseURL            string `envconfig:"REALTIME_BASE_URL" default:"wss://api.openai.com/v1/realtime"`
	SessionEndpoint    string `envconfig:"REALTIME_SESSION_ENDPOINT" default:"https://api.openai.com/v1/realtime/sessions"`
	Model              string `envconfig:"REALTIME_MODEL" default:"gpt-4o-realtime-preview-2024-12-17"`
	Voice              string `envconfig:"REALTIME_VOICE" default:"sage"`
	Codec              string `envconfig:"REALTIME_CODEC" default:"pcm16"`
	TranscriptionModel string `envconfig:"REALTIME_TRANSCRIPTION_MODEL" default:"whisper-1"`
}

type CompletionsConfig struct {
	APIKey  string `envconfig:"OPENAI_API_KEY" required:"true"`
	BaseURL string `envconfig:"COMPLETIONS_BASE_URL" default:"https://api.openai.com/v1/chat/completions"`
	Model   string `envconfig:"COMPLETIONS_MODEL" default:"gpt-4o-mini"`
}

type GuardrailConfig struct {
	CompanyName string `envconfig:"GUARDRAIL_COMPANY_NAME" default:"CorgiVoice"`
}

// Load reads configuration from the environment, first loading a local .env
// file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

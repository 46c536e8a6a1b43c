package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port               string `env:"PORT" envDefault:"3000"`
	CorsAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS"` // Comma-separated allowed origins (empty = *)
	MaxBodyBytes       int64  `env:"MAX_BODY_BYTES" envDefault:"52428800"`
	Debug              bool   `env:"DEBUG"`

	// Persisted audio
	PublicDir  string `env:"PUBLIC_DIR" envDefault:"public"`
	OutputFile string `env:"OUTPUT_FILE" envDefault:"output.mp3"`

	// Which upstream turns text into audio: convai | openai
	VoiceProvider string `env:"VOICE_PROVIDER" envDefault:"convai"`

	Convai ConvaiConfig
	OpenAI OpenAIConfig

	// Optional sinks — each one is disabled when its URL is empty
	DatabaseURL           string        `env:"DATABASE_URL"`
	RedisURL              string        `env:"REDIS_URL"`
	SupabaseURL           string        `env:"SUPABASE_URL"`
	SupabaseServiceKey    string        `env:"SUPABASE_SERVICE_KEY"`
	SupabaseStorageBucket string        `env:"SUPABASE_STORAGE_BUCKET" envDefault:"voice-relay"`
	RecordTimeout         time.Duration `env:"RECORD_TIMEOUT" envDefault:"10s"`
}

// ConvaiConfig holds credentials and wire settings for the Convai character API.
// Credentials are allowed to be empty at startup; requests fail with a
// configuration error until they are set.
type ConvaiConfig struct {
	APIKey            string        `env:"CONVAI_API_KEY"`
	CharacterID       string        `env:"CONVAI_CHAR_ID"`
	BaseURL           string        `env:"CONVAI_API_URL" envDefault:"https://api.convai.com"`
	SessionID         string        `env:"CONVAI_SESSION_ID" envDefault:"-1"`
	Timeout           time.Duration `env:"CONVAI_TIMEOUT" envDefault:"45s"`
	MultipartFallback bool          `env:"CONVAI_MULTIPART_FALLBACK" envDefault:"true"`
	AudioFields       []string      `env:"CONVAI_AUDIO_FIELDS" envSeparator:"," envDefault:"audio_base64,audio"`
	TextFields        []string      `env:"CONVAI_TEXT_FIELDS" envSeparator:"," envDefault:"response"`
}

type OpenAIConfig struct {
	APIKey          string        `env:"OPENAI_API_KEY"`
	BaseURL         string        `env:"OPENAI_BASE_URL"`
	ChatModel       string        `env:"OPENAI_CHAT_MODEL" envDefault:"gpt-4o-mini"`
	TTSModel        string        `env:"OPENAI_TTS_MODEL" envDefault:"tts-1"`
	TTSVoice        string        `env:"OPENAI_TTS_VOICE" envDefault:"alloy"`
	CharacterPrompt string        `env:"OPENAI_CHARACTER_PROMPT"`
	Timeout         time.Duration `env:"OPENAI_TIMEOUT" envDefault:"45s"`
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// CHARACTER_ID is the older name for the Convai character
	if cfg.Convai.CharacterID == "" {
		cfg.Convai.CharacterID = os.Getenv("CHARACTER_ID")
	}

	cfg.Convai.AudioFields = cleanList(cfg.Convai.AudioFields)
	cfg.Convai.TextFields = cleanList(cfg.Convai.TextFields)

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("PORT must be numeric, got %q", cfg.Port)
	}

	if cfg.OutputFile == "" || strings.ContainsAny(cfg.OutputFile, `/\`) {
		return nil, fmt.Errorf("OUTPUT_FILE must be a bare file name, got %q", cfg.OutputFile)
	}

	switch cfg.VoiceProvider {
	case "convai", "openai":
	default:
		return nil, fmt.Errorf("VOICE_PROVIDER must be convai or openai, got %q", cfg.VoiceProvider)
	}

	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_SERVICE_KEY is required when SUPABASE_URL is set")
	}

	return cfg, nil
}

// cleanList trims entries and drops empty ones, keeping order.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

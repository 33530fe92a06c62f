package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	GinMode  string `env:"GIN_MODE" envDefault:"release"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	SessionStore    string `env:"SESSION_STORE" envDefault:"mongo"`
	MongoURI        string `env:"MONGO_URI"`
	MongoDB         string `env:"MONGO_DB" envDefault:"yooprep"`
	MongoForceTLS12 bool   `env:"MONGO_FORCE_TLS12" envDefault:"false"`
	MongoInsecure   bool   `env:"MONGO_INSECURE_TLS" envDefault:"false"`

	PostgresURI string `env:"POSTGRES_URI"`
	RedisURL    string `env:"REDIS_URL"`

	JWTSecret   string `env:"JWT_SECRET,required"`
	JWTIssuer   string `env:"JWT_ISSUER"`
	JWTAudience string `env:"JWT_AUDIENCE"`

	GCPProjectID string `env:"GCP_PROJECT_ID"`
	GCPLocation  string `env:"GCP_LOCATION" envDefault:"us-central1"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	AudioBucket  string `env:"AUDIO_BUCKET"`

	QuestionCacheTTLSeconds int   `env:"QUESTION_CACHE_TTL_SECONDS" envDefault:"600"`
	TranscriptionWorkers    int   `env:"TRANSCRIPTION_WORKERS" envDefault:"2"`
	AnswerAudioMaxBytes     int64 `env:"ANSWER_AUDIO_MAX_BYTES" envDefault:"20971520"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) QuestionCacheTTL() time.Duration {
	return time.Duration(c.QuestionCacheTTLSeconds) * time.Second
}

// AudioEnabled reports whether recorded answers can be accepted: they need
// object storage, the speech API and a queue.
func (c *Config) AudioEnabled() bool {
	return c.AudioBucket != "" && c.GCPProjectID != "" && c.RedisURL != ""
}

func (c *Config) Validate() error {
	switch c.SessionStore {
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required when SESSION_STORE=mongo")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", StoreMongo, StoreMemory, c.SessionStore)
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.QuestionCacheTTLSeconds <= 0 {
		return errors.New("QUESTION_CACHE_TTL_SECONDS must be positive")
	}
	if c.TranscriptionWorkers <= 0 {
		return errors.New("TRANSCRIPTION_WORKERS must be positive")
	}
	if c.AnswerAudioMaxBytes <= 0 {
		return errors.New("ANSWER_AUDIO_MAX_BYTES must be positive")
	}
	return nil
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

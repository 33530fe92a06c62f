package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:                    8080,
		SessionStore:            StoreMemory,
		JWTSecret:               "0123456789abcdef0123",
		QuestionCacheTTLSeconds: 600,
		TranscriptionWorkers:    2,
		AnswerAudioMaxBytes:     1 << 20,
	}
}

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("QuestionCacheTTL converts seconds to duration", func(t *testing.T) {
		cfg := &Config{QuestionCacheTTLSeconds: 90}
		assert.Equal(t, 90*time.Second, cfg.QuestionCacheTTL())
	})

	t.Run("AudioEnabled needs bucket, project and redis", func(t *testing.T) {
		cfg := &Config{AudioBucket: "b", GCPProjectID: "p"}
		assert.False(t, cfg.AudioEnabled())
		cfg.RedisURL = "redis://localhost:6379"
		assert.True(t, cfg.AudioEnabled())
	})
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := map[string]func(c *Config){
		"mongo store without uri": func(c *Config) { c.SessionStore = StoreMongo },
		"unknown store":           func(c *Config) { c.SessionStore = "dynamo" },
		"short jwt secret":        func(c *Config) { c.JWTSecret = "short" },
		"bad port":                func(c *Config) { c.Port = 70000 },
		"zero cache ttl":          func(c *Config) { c.QuestionCacheTTLSeconds = 0 },
		"zero workers":            func(c *Config) { c.TranscriptionWorkers = 0 },
		"zero audio limit":        func(c *Config) { c.AnswerAudioMaxBytes = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads config with defaults", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "0123456789abcdef0123")
		t.Setenv("SESSION_STORE", "memory")
		t.Setenv("PORT", "")
		t.Setenv("QUESTION_CACHE_TTL_SECONDS", "")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "yooprep", cfg.MongoDB)
		assert.Equal(t, 10*time.Minute, cfg.QuestionCacheTTL())
		assert.Equal(t, int64(20<<20), cfg.AnswerAudioMaxBytes)
	})

	t.Run("fails without JWT_SECRET", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		t.Setenv("SESSION_STORE", "memory")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("mongo store requires MONGO_URI", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "0123456789abcdef0123")
		t.Setenv("SESSION_STORE", "mongo")
		t.Setenv("MONGO_URI", "")

		_, err := Load()
		assert.Error(t, err)
	})
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"APP_PORT", "DB_DRIVER", "GEMINI_MODELS", "OLLAMA_MODELS", "STREAM_HEARTBEAT", "GENERATION_TIMEOUT", "ENABLE_DEMO_MODEL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "", cfg.App.Port, "explicitly empty values win over defaults")
	assert.Equal(t, 15*time.Second, cfg.Stream.Heartbeat)
	assert.Equal(t, time.Duration(0), cfg.Stream.GenerationTimeout)
	assert.Nil(t, cfg.Ai.OllamaModels)
	assert.True(t, cfg.Ai.EnableDemo)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("GO_ENV", "production")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("GEMINI_MODELS", " gemini-a , ,gemini-b")
	t.Setenv("STREAM_HEARTBEAT", "5s")
	t.Setenv("GENERATION_TIMEOUT", "90")
	t.Setenv("STREAM_BUFFER", "not-a-number")
	t.Setenv("ENABLE_DEMO_MODEL", "false")

	cfg := Load()
	assert.Equal(t, "8080", cfg.App.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, []string{"gemini-a", "gemini-b"}, cfg.Ai.GeminiModels)
	assert.Equal(t, 5*time.Second, cfg.Stream.Heartbeat)
	assert.Equal(t, 90*time.Second, cfg.Stream.GenerationTimeout)
	assert.Equal(t, 64, cfg.Stream.Buffer)
	assert.False(t, cfg.Ai.EnableDemo)
}

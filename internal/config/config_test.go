package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("DEFAULT_MODEL", "qwen3:8b")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("GATEWAY_TIMEOUT", "45")
	t.Setenv("SPLITTER", "recursive")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("LLM_PROVIDER", "huggingface")

	cfg := Load()
	assert.Equal(t, "http://gpu-box:11434", cfg.Ai.OllamaHost)
	assert.Equal(t, "qwen3:8b", cfg.Ai.DefaultModel)
	assert.Equal(t, "9000", cfg.App.Port)
	assert.Equal(t, 45*time.Second, cfg.Ai.GatewayTimeout)
	assert.Equal(t, "recursive", cfg.Rag.Splitter)
	assert.True(t, cfg.Otel.Enabled)
	assert.Equal(t, "huggingface", cfg.Ai.Provider)
}

func TestGetEnv_Fallbacks(t *testing.T) {
	assert.Equal(t, "nomic-embed-text:latest", getEnv("RELAY_TEST_UNSET_KEY", "nomic-embed-text:latest"))
	assert.Equal(t, 3, getEnvAsInt("RELAY_TEST_UNSET_KEY", 3))

	t.Setenv("RELAY_TEST_INT", "not-a-number")
	assert.Equal(t, 7, getEnvAsInt("RELAY_TEST_INT", 7))
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("RELAY_TEST_DURATION", "1m30s")
	assert.Equal(t, 90*time.Second, getEnvAsDuration("RELAY_TEST_DURATION", 0))

	t.Setenv("RELAY_TEST_DURATION", "garbage")
	assert.Equal(t, time.Duration(0), getEnvAsDuration("RELAY_TEST_DURATION", 0))
}

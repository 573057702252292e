package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 400*time.Millisecond, cfg.ChatRateLimit)
	assert.Equal(t, time.Duration(0), cfg.DrawRateLimit)
	assert.Equal(t, 65536, cfg.MaxTextBytes)
	assert.Equal(t, 131072, cfg.MaxBinaryBytes)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.False(t, cfg.DebugWS)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MOMAL_ADDR", ":9999")
	t.Setenv("MOMAL_CHAT_RATE_LIMIT_MS", "250")
	t.Setenv("MOMAL_DRAW_RATE_LIMIT_MS", "16")
	t.Setenv("MOMAL_WS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("MOMAL_DEBUG_WS", "1")

	cfg := FromEnv()

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.ChatRateLimit)
	assert.Equal(t, 16*time.Millisecond, cfg.DrawRateLimit)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.DebugWS)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("MOMAL_CHAT_RATE_LIMIT_MS", "-5")
	t.Setenv("MOMAL_WS_MAX_TEXT_BYTES", "not-a-number")

	cfg := FromEnv()

	assert.Equal(t, 400*time.Millisecond, cfg.ChatRateLimit, "negative falls back to the default")
	assert.Equal(t, 65536, cfg.MaxTextBytes)
}

func TestFromEnvZeroDisablesLimit(t *testing.T) {
	t.Setenv("MOMAL_CHAT_RATE_LIMIT_MS", "0")

	cfg := FromEnv()
	assert.Equal(t, time.Duration(0), cfg.ChatRateLimit)
}

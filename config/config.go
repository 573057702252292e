// Package config collects the runtime tunables, all overridable via
// MOMAL_* environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultChatRateLimitMs = 400
	defaultDrawRateLimitMs = 0 // disabled
	defaultMaxTextBytes    = 65536
	defaultMaxBinaryBytes  = 131072
)

type Config struct {
	Addr string

	// ChatRateLimit paces chat/guess messages per connection; DrawRateLimit
	// paces draw events. Zero disables the respective limit.
	ChatRateLimit time.Duration
	DrawRateLimit time.Duration

	// Per-channel inbound payload caps. Oversize closes the connection.
	MaxTextBytes   int
	MaxBinaryBytes int

	// AllowedOrigins is the websocket Origin allowlist; empty allows all.
	AllowedOrigins []string

	DebugWS bool

	WordsFile     string
	PostgresURL   string
	HighscoreFile string
	StaticDir     string
}

// FromEnv builds a Config from the environment with defaults.
func FromEnv() Config {
	return Config{
		Addr:           envStr("MOMAL_ADDR", ":8080"),
		ChatRateLimit:  time.Duration(envInt("MOMAL_CHAT_RATE_LIMIT_MS", defaultChatRateLimitMs)) * time.Millisecond,
		DrawRateLimit:  time.Duration(envInt("MOMAL_DRAW_RATE_LIMIT_MS", defaultDrawRateLimitMs)) * time.Millisecond,
		MaxTextBytes:   envInt("MOMAL_WS_MAX_TEXT_BYTES", defaultMaxTextBytes),
		MaxBinaryBytes: envInt("MOMAL_WS_MAX_BINARY_BYTES", defaultMaxBinaryBytes),
		AllowedOrigins: envList("MOMAL_WS_ALLOWED_ORIGINS"),
		DebugWS:        os.Getenv("MOMAL_DEBUG_WS") == "1",
		WordsFile:      os.Getenv("MOMAL_WORDS_FILE"),
		PostgresURL:    os.Getenv("MOMAL_POSTGRES_URL"),
		HighscoreFile:  envStr("MOMAL_HIGHSCORE_FILE", "var/highscore-by-room.json"),
		StaticDir:      os.Getenv("MOMAL_STATIC_DIR"),
	}
}

func envStr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// envInt mirrors the original server's env parsing: unset or negative
// values fall back to the default, zero is a valid "disabled".
func envInt(key string, def int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

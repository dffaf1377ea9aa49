package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	DatabaseURL     string
	NatsURL         string
	NatsToken       string
	RedisURL        string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	LLMTimeout      time.Duration
	SlackBotToken   string
	SlackChannel    string
	APIToken        string
	TunablesPath    string
}

func Load() Config {
	// A missing .env is fine; env vars win either way.
	_ = godotenv.Load()

	return Config{
		Port:            envInt("ARBITER_PORT", 8840),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		NatsURL:         envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:       envStr("NATS_TOKEN", ""),
		RedisURL:        envStr("REDIS_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("ARBITER_MODEL", "claude-sonnet-4-20250514"),
		LLMTimeout:      envDuration("ARBITER_LLM_TIMEOUT", 120*time.Second),
		SlackBotToken:   envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:    envStr("SLACK_REVIEW_CHANNEL", ""),
		APIToken:        envStr("ARBITER_API_TOKEN", ""),
		TunablesPath:    envStr("ARBITER_TUNABLES", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

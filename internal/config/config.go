package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          int
	NatsURL       string
	NatsToken     string
	DatabaseURL   string
	LogLevel      string
	TranscriptDir string

	OpenAIKey      string
	EmbeddingModel string
	EmbeddingDim   int
	EmbedTimeout   time.Duration
	EmbedRetries   int

	QuietWindow    time.Duration
	BatchCeiling   int
	StoreRetries   int
	SessionWorkers int
	PairWorkers    int

	// ValidationThreshold is the minimum confidence for a positive/negative
	// sentiment to mark a solution validated or refuted.
	ValidationThreshold float64

	StatePath string
}

func Load() Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	return Config{
		Port:          envInt("CHAINFILL_PORT", 8760),
		NatsURL:       envStr("NATS_URL", ""),
		NatsToken:     envStr("NATS_TOKEN", ""),
		DatabaseURL:   envStr("DATABASE_URL", ""),
		LogLevel:      envStr("LOG_LEVEL", "info"),
		TranscriptDir: envStr("CHAINFILL_TRANSCRIPT_DIR", "~/.chainfill/transcripts"),

		OpenAIKey:      envStr("OPENAI_API_KEY", ""),
		EmbeddingModel: envStr("CHAINFILL_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:   envInt("CHAINFILL_EMBEDDING_DIM", 1536),
		EmbedTimeout:   envDur("CHAINFILL_EMBED_TIMEOUT", 15*time.Second),
		EmbedRetries:   envInt("CHAINFILL_EMBED_RETRIES", 3),

		QuietWindow:    envDur("CHAINFILL_QUIET_WINDOW", 2*time.Minute),
		BatchCeiling:   envInt("CHAINFILL_BATCH_CEILING", 166),
		StoreRetries:   envInt("CHAINFILL_STORE_RETRIES", 3),
		SessionWorkers: envInt("CHAINFILL_SESSION_WORKERS", 4),
		PairWorkers:    envInt("CHAINFILL_PAIR_WORKERS", 4),

		ValidationThreshold: envFloat("CHAINFILL_VALIDATION_THRESHOLD", 0.75),

		StatePath: envStr("CHAINFILL_STATE_PATH", "~/.chainfill/backfill-state.json"),
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

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

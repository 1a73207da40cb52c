package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"qarag/pipeline"
	"qarag/types"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr   string `validate:"required"`
	Backend      string `validate:"oneof=postgres memory"`
	PGHost       string `validate:"required_if=Backend postgres"`
	PGPort       int    `validate:"gte=0,lte=65535"`
	PGUser       string
	PGPass       string
	PGDBName     string `validate:"required_if=Backend postgres"`
	PGSSLMode    string
	EmbeddingDim int    `validate:"gte=1"`
	LogLevel     string `validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
	Pipeline     types.PipelineConfig
	LLM          types.LLMConfig
	Embedder     types.EmbedderConfig
}

// LoadEnvFile loads .env when present. A missing file is not an error; the process
// environment is used as is.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":3000"),
		Backend:      getEnv("STORE_BACKEND", "postgres"),
		PGHost:       getEnv("PG_HOST", "localhost"),
		PGPort:       getEnvInt("PG_PORT", 5432),
		PGUser:       getEnv("PG_USER", "postgres"),
		PGPass:       getSecret("PG_PASS", "PG_PASS_FILE", ""),
		PGDBName:     getEnv("PG_DB_NAME", "rag"),
		PGSSLMode:    getEnv("PG_SSLMODE", "disable"),
		EmbeddingDim: getEnvInt("EMBEDDING_DIM", 768),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Pipeline: types.PipelineConfig{
			TopK:                getEnvInt("RAG_TOP_K", pipeline.DefaultTopK),
			SimilarityThreshold: getEnvFloat("CACHE_SIMILARITY_THRESHOLD", pipeline.DefaultSimilarityThreshold),
			CacheLookupTimeout:  getEnvDuration("CACHE_LOOKUP_TIMEOUT", pipeline.DefaultCacheLookupTimeout),
			BatchConcurrency:    getEnvInt("BATCH_CONCURRENCY", 1),
		},
		LLM: types.LLMConfig{
			Url:           getEnv("LLM_URL", "http://localhost:11434/api/generate"),
			Model:         getEnv("LLM_MODEL", "llama3.2:3b"),
			Temperature:   getEnvFloat("LLM_TEMPERATURE", 0.3),
			MaxTokens:     getEnvInt("LLM_MAX_TOKENS", 200),
			ContextTokens: getEnvInt("LLM_CONTEXT_TOKENS", 1500),
			RatePerSec:    getEnvFloat("LLM_RATE_PER_SEC", 0),
			Timeout:       getEnvDuration("LLM_TIMEOUT", 120*time.Second),
		},
		Embedder: types.EmbedderConfig{
			Url:       getEnv("OLLAMA_EMBEDDING_URL", "http://localhost:11434/api/embeddings"),
			Model:     getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			CacheSize: getEnvInt("EMBEDDING_CACHE_SIZE", 1024),
			Timeout:   getEnvDuration("OLLAMA_EMBEDDING_TIMEOUT", 30*time.Second),
		},
	}

	if err := types.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PGHost, c.PGPort, c.PGUser, c.PGPass, c.PGDBName, c.PGSSLMode)
}

// NewLogger builds the process logger: JSON on stdout at the configured level.
func NewLogger(level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		if content, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

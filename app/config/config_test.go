package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"qarag/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"STORE_BACKEND", "RAG_TOP_K", "CACHE_SIMILARITY_THRESHOLD", "CACHE_LOOKUP_TIMEOUT", "PG_HOST", "PG_DB_NAME", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Backend)
	assert.Equal(t, 3, cfg.Pipeline.TopK)
	assert.Equal(t, 0.60, cfg.Pipeline.SimilarityThreshold)
	assert.Equal(t, 3*time.Second, cfg.Pipeline.CacheLookupTimeout)
	assert.Equal(t, 768, cfg.EmbeddingDim)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("RAG_TOP_K", "5")
	t.Setenv("CACHE_SIMILARITY_THRESHOLD", "0.75")
	t.Setenv("CACHE_LOOKUP_TIMEOUT", "500ms")
	t.Setenv("BATCH_CONCURRENCY", "4")
	t.Setenv("LLM_RATE_PER_SEC", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, 5, cfg.Pipeline.TopK)
	assert.Equal(t, 0.75, cfg.Pipeline.SimilarityThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.CacheLookupTimeout)
	assert.Equal(t, 4, cfg.Pipeline.BatchConcurrency)
	assert.Equal(t, 2.5, cfg.LLM.RatePerSec)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"CACHE_SIMILARITY_THRESHOLD": "1.5",
		"RAG_TOP_K":                  "0",
		"STORE_BACKEND":              "sqlite",
		"LLM_URL":                    "not a url",
		"LOG_LEVEL":                  "verbose",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			var verr types.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Errors)
		})
	}
}

func TestGetSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg_pass")
	require.NoError(t, os.WriteFile(path, []byte("s3cret\n"), 0o600))

	t.Setenv("TEST_SECRET_FILE", path)
	assert.Equal(t, "s3cret", getSecret("TEST_SECRET_UNSET_KEY", "TEST_SECRET_FILE", "fallback"))

	t.Setenv("TEST_SECRET", "direct")
	assert.Equal(t, "direct", getSecret("TEST_SECRET", "TEST_SECRET_FILE", "fallback"))

	assert.Equal(t, "fallback", getSecret("TEST_SECRET_UNSET_KEY", "TEST_SECRET_FILE_UNSET_KEY", "fallback"))
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("QARAG_TEST_FROM_DOTENV=loaded\n"), 0o600))
	t.Setenv("QARAG_TEST_FROM_DOTENV", "")
	require.NoError(t, os.Unsetenv("QARAG_TEST_FROM_DOTENV"))

	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("QARAG_TEST_FROM_DOTENV"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{PGHost: "db", PGPort: 5433, PGUser: "rag", PGPass: "pw", PGDBName: "rag", PGSSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=rag password=pw dbname=rag sslmode=disable", cfg.PostgresDSN())
}

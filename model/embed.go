package model

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Embedder turns text into a vector. Documents and questions must share one embedder
// so their distances are comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CachedEmbedder keeps recent embeddings keyed by the exact text, so a cache lookup
// followed by a cache register embeds the question once.
type CachedEmbedder struct {
	next   Embedder
	cache  *lru.Cache[string, []float32]
	logger *slog.Logger
}

func NewCachedEmbedder(next Embedder, size int, logger *slog.Logger) (*CachedEmbedder, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{
		next:   next,
		cache:  cache,
		logger: logger,
	}, nil
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := strings.TrimSpace(text)
	if vec, ok := e.cache.Get(key); ok {
		e.logger.Debug("embedding_cache_hit", "chars", len(key))
		return vec, nil
	}

	vec, err := e.next.Embed(ctx, key)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, vec)
	return vec, nil
}

func (e *CachedEmbedder) Len() int {
	return e.cache.Len()
}

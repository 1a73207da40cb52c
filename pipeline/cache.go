package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"qarag/model"
	"qarag/store"
	"qarag/types"

	"github.com/google/uuid"
)

const DefaultCacheLookupTimeout = 3 * time.Second

// SemanticCache maps a question to the cluster of an equivalent question answered
// before.
type SemanticCache struct {
	embedder  model.Embedder
	index     store.QuestionIndex
	threshold float64
	timeout   time.Duration
	logger    *slog.Logger
}

func NewSemanticCache(embedder model.Embedder, index store.QuestionIndex, threshold float64, timeout time.Duration, logger *slog.Logger) *SemanticCache {
	if timeout <= 0 {
		timeout = DefaultCacheLookupTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticCache{
		embedder:  embedder,
		index:     index,
		threshold: threshold,
		timeout:   timeout,
		logger:    logger,
	}
}

// Lookup returns the cache id of the nearest registered question when its similarity
// reaches the threshold. Any failure is reported as a miss.
func (c *SemanticCache) Lookup(ctx context.Context, question string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	vec, err := c.embedder.Embed(ctx, question)
	if err != nil {
		c.logger.Warn("cache_lookup_failed", "stage", "embed", "error", err)
		return "", false
	}

	match, err := c.index.NearestQuestion(ctx, vec)
	if err != nil {
		c.logger.Warn("cache_lookup_failed", "stage", "search", "error", err)
		return "", false
	}
	if match == nil {
		return "", false
	}

	similarity := Similarity(match.Distance)
	if similarity < c.threshold {
		c.logger.Debug("cache_below_threshold", "cache_id", match.CacheID, "similarity", similarity)
		return "", false
	}

	c.logger.Debug("cache_match", "cache_id", match.CacheID, "similarity", similarity)
	return match.CacheID, true
}

// Register adds question to the question index as the representative of cacheID.
func (c *SemanticCache) Register(ctx context.Context, question, cacheID string) error {
	vec, err := c.embedder.Embed(ctx, question)
	if err != nil {
		return fmt.Errorf("embedding question: %w", err)
	}
	entry := types.CacheEntry{
		CacheID:   cacheID,
		Question:  question,
		CreatedAt: time.Now(),
	}
	return c.index.AddQuestion(ctx, entry, vec)
}

func NewCacheID() string {
	return uuid.NewString()
}

package api

import (
	"qarag/types"

	"github.com/gofiber/fiber/v2"
)

// ConfigHandler reports the effective pipeline settings. Secrets are never exposed.
type ConfigHandler struct {
	pipeline types.PipelineConfig
	llm      types.LLMConfig
	embedder types.EmbedderConfig
}

func NewConfigHandler(p types.PipelineConfig, llm types.LLMConfig, emb types.EmbedderConfig) *ConfigHandler {
	return &ConfigHandler{
		pipeline: p,
		llm:      llm,
		embedder: emb,
	}
}

func (h *ConfigHandler) HandleGetConfig(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"top_k":                h.pipeline.TopK,
		"similarity_threshold": h.pipeline.SimilarityThreshold,
		"cache_lookup_timeout": h.pipeline.CacheLookupTimeout.String(),
		"batch_concurrency":    h.pipeline.BatchConcurrency,
		"llm_model":            h.llm.Model,
		"llm_max_tokens":       h.llm.MaxTokens,
		"llm_context_tokens":   h.llm.ContextTokens,
		"embedding_model":      h.embedder.Model,
	})
}

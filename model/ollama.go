package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"qarag/types"
)

var ErrEmptyEmbedding = errors.New("ollama returned an empty embedding")

// OllamaEmbedder calls the Ollama embeddings endpoint.
type OllamaEmbedder struct {
	apiURL string
	model  string
	client *http.Client
	logger *slog.Logger
}

type OllamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type OllamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewOllamaEmbedder(cfg types.EmbedderConfig, logger *slog.Logger) *OllamaEmbedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("embedder_configured", "model", cfg.Model, "url", cfg.Url)

	return &OllamaEmbedder{
		apiURL: cfg.Url,
		model:  cfg.Model,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := OllamaEmbeddingRequest{
		Model:  e.model,
		Prompt: text,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		e.logger.Error("ollama_embed_failed", "error", err, "elapsed", time.Since(start))
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var ollamaResp OllamaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(ollamaResp.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	norm := Normalize(ollamaResp.Embedding)

	embedding := make([]float32, len(norm))
	for i, v := range norm {
		embedding[i] = float32(v)
	}

	e.logger.Debug("ollama_embed_completed", "dims", len(embedding), "elapsed", time.Since(start))
	return embedding, nil
}

// Normalize scales vec to unit length in place. A zero vector is returned unchanged.
func Normalize(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}

	for i, x := range vec {
		vec[i] = x / norm
	}
	return vec
}

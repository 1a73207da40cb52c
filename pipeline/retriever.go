package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"qarag/model"
	"qarag/store"
	"qarag/types"
)

// Retriever finds the passages most similar to a question.
type Retriever struct {
	embedder model.Embedder
	index    store.DocumentIndex
	logger   *slog.Logger
}

func NewRetriever(embedder model.Embedder, index store.DocumentIndex, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		logger:   logger,
	}
}

// Retrieve returns at most k chunks ordered by descending similarity. An unreachable
// index yields no chunks rather than an error; a failed embedding is an error.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]types.RetrievedChunk, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	hits, err := r.index.SearchChunks(ctx, vec, k)
	if err != nil {
		r.logger.Error("document_index_unavailable", "error", err)
		return nil, nil
	}

	chunks := make([]types.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		chunks = append(chunks, types.RetrievedChunk{
			Content:    h.Content,
			Source:     h.Source,
			Page:       max(h.Page, 0),
			Similarity: Similarity(h.Distance),
		})
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Similarity > chunks[j].Similarity
	})
	if len(chunks) > k {
		chunks = chunks[:k]
	}

	r.logger.Debug("chunks_retrieved", "requested", k, "found", len(chunks))
	return chunks, nil
}

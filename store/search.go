package store

import (
	"context"
	"errors"
	"fmt"

	"qarag/types"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// SearchChunks returns the k nearest chunks by cosine distance, nearest first.
func (p *PostgresStore) SearchChunks(ctx context.Context, queryVec []float32, k int) ([]types.IndexedChunk, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if k <= 0 {
		return nil, nil
	}

	query := `
		SELECT content, source, page, embedding <=> $1 AS distance
		FROM chunks
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := p.executor(ctx).Query(ctx, query, pgvector.NewVector(queryVec), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var chunks []types.IndexedChunk
	for rows.Next() {
		var chunk types.IndexedChunk
		if err := rows.Scan(&chunk.Content, &chunk.Source, &chunk.Page, &chunk.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		p.logger.Debug("chunk_found", "source", chunk.Source, "page", chunk.Page, "distance", chunk.Distance)
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return chunks, nil
}

func (p *PostgresStore) NearestQuestion(ctx context.Context, queryVec []float32) (*types.QuestionMatch, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	query := `
		SELECT cache_id, question, embedding <=> $1 AS distance
		FROM question_cache
		ORDER BY embedding <=> $1
		LIMIT 1
	`
	var m types.QuestionMatch
	err := p.executor(ctx).QueryRow(ctx, query, pgvector.NewVector(queryVec)).Scan(&m.CacheID, &m.Question, &m.Distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search question cache: %w", err)
	}
	return &m, nil
}

func (p *PostgresStore) AddQuestion(ctx context.Context, entry types.CacheEntry, vec []float32) error {
	if entry.CacheID == "" {
		return fmt.Errorf("cache id is required")
	}
	query := `
		INSERT INTO question_cache (cache_id, question, embedding)
		VALUES ($1, $2, $3)
	`
	if _, err := p.executor(ctx).Exec(ctx, query, entry.CacheID, entry.Question, pgvector.NewVector(vec)); err != nil {
		return fmt.Errorf("failed to register question %s: %w", entry.CacheID, err)
	}
	return nil
}

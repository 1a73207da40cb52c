package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"qarag/types"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyResolved = errors.New("question already resolved")
)

// DocumentIndex is the read side of the document similarity index. It is filled by
// the ingestion pipeline, never by this service.
type DocumentIndex interface {
	SearchChunks(ctx context.Context, vec []float32, k int) ([]types.IndexedChunk, error)
}

// QuestionIndex holds one embedded representative question per cache cluster.
type QuestionIndex interface {
	// NearestQuestion returns the closest registered question, or nil when the index is empty.
	NearestQuestion(ctx context.Context, vec []float32) (*types.QuestionMatch, error)
	AddQuestion(ctx context.Context, entry types.CacheEntry, vec []float32) error
}

type HistoryStorer interface {
	CreatePending(ctx context.Context, sessionID int64, question string) (int64, error)
	// Resolve writes the answer-side fields once. Corrections already made on the
	// cluster named by bundle.CacheID are carried onto the record.
	Resolve(ctx context.Context, questionID int64, bundle types.AnswerBundle) error
	// ReadByCacheID returns the canonical record of a cluster: the lowest question_id
	// with a non-null answer.
	ReadByCacheID(ctx context.Context, cacheID string) (*types.AnswerBundle, error)
	// CorrectCluster applies c to every record sharing questionID's cache_id, atomically.
	// A pending or unknown question affects zero rows.
	CorrectCluster(ctx context.Context, questionID int64, c types.ClusterCorrection) (int64, error)
	GetRecord(ctx context.Context, questionID int64) (*types.HistoryRecord, error)
	SessionHistory(ctx context.Context, sessionID int64) ([]types.HistoryRecord, error)
	GlobalHistory(ctx context.Context) ([]types.HistoryRecord, error)
}

type SessionStorer interface {
	CreateSession(ctx context.Context, chatType types.ChatType) (*types.Session, error)
	GetSession(ctx context.Context, sessionID int64) (*types.Session, error)
	RenameIfNew(ctx context.Context, sessionID int64, firstQuestion string) error
	ListSessions(ctx context.Context, chatType types.ChatType) ([]types.Session, error)
}

// Storer is everything the service needs from one backend.
type Storer interface {
	DocumentIndex
	QuestionIndex
	HistoryStorer
	SessionStorer
	Ping(ctx context.Context) error
	Close() error
}

const (
	DefaultSessionName = "New Chat"
	sessionNameRunes   = 40
)

type PostgresStore struct {
	pool   *pgxpool.Pool
	dim    int
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, dim int, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:   pool,
		dim:    dim,
		logger: logger,
	}, nil
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		source TEXT NOT NULL,
		page INT NOT NULL DEFAULT 0 CHECK (page >= 0),
		content TEXT NOT NULL,
		embedding vector(%[1]d)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops);

	CREATE TABLE IF NOT EXISTS question_cache (
		cache_id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		embedding vector(%[1]d) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_question_cache_embedding ON question_cache USING hnsw (embedding vector_cosine_ops);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		session_id BIGSERIAL PRIMARY KEY,
		session_name TEXT NOT NULL DEFAULT 'New Chat',
		chat_type TEXT NOT NULL CHECK (chat_type IN ('chat','batch')),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS chat_history (
		question_id BIGSERIAL PRIMARY KEY,
		session_id BIGINT NOT NULL REFERENCES chat_sessions(session_id),
		question TEXT NOT NULL,
		answer TEXT,
		confidence DOUBLE PRECISION CHECK (confidence >= 0 AND confidence <= 100),
		sources TEXT,
		cache_id TEXT,
		accepted BOOLEAN,
		edited_answer TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_chat_history_cache_id ON chat_history(cache_id);
	CREATE INDEX IF NOT EXISTS idx_chat_history_session_id ON chat_history(session_id);
	`, p.dim)

	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	if p.dim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", p.dim)
	}
	return p.createTables(ctx)
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres_pool_closed")
	}
	return nil
}

var _ Storer = (*PostgresStore)(nil)

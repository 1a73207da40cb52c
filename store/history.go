package store

import (
	"context"
	"errors"
	"fmt"

	"qarag/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const historyColumns = `question_id, session_id, question, answer, sources, confidence, cache_id, accepted, edited_answer, created_at`

const foreignKeyViolation = "23503"

func (p *PostgresStore) CreatePending(ctx context.Context, sessionID int64, question string) (int64, error) {
	query := `
		INSERT INTO chat_history (session_id, question)
		VALUES ($1, $2)
		RETURNING question_id
	`
	var questionID int64
	err := p.executor(ctx).QueryRow(ctx, query, sessionID, question).Scan(&questionID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return 0, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to create pending question: %w", err)
	}
	return questionID, nil
}

func (p *PostgresStore) Resolve(ctx context.Context, questionID int64, b types.AnswerBundle) error {
	return p.RunInTx(ctx, func(ctx context.Context) error {
		accepted, edited := b.Accepted, b.EditedAnswer
		if b.CacheID != "" {
			if err := p.lockCluster(ctx, b.CacheID); err != nil {
				return err
			}
			canonical, err := p.ReadByCacheID(ctx, b.CacheID)
			switch {
			case errors.Is(err, ErrNotFound):
			case err != nil:
				return err
			default:
				accepted, edited = canonical.Accepted, canonical.EditedAnswer
			}
		}

		query := `
			UPDATE chat_history
			SET answer = $2,
				sources = $3,
				confidence = $4,
				cache_id = $5,
				accepted = $6,
				edited_answer = $7
			WHERE question_id = $1 AND answer IS NULL
		`
		var cacheID *string
		if b.CacheID != "" {
			cacheID = &b.CacheID
		}
		tag, err := p.executor(ctx).Exec(ctx, query, questionID, b.Answer, b.Sources, b.Confidence, cacheID, accepted, edited)
		if err != nil {
			return fmt.Errorf("failed to resolve question %d: %w", questionID, err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		if _, err := p.GetRecord(ctx, questionID); err != nil {
			return err
		}
		return fmt.Errorf("question %d: %w", questionID, ErrAlreadyResolved)
	})
}

func (p *PostgresStore) ReadByCacheID(ctx context.Context, cacheID string) (*types.AnswerBundle, error) {
	if cacheID == "" {
		return nil, ErrNotFound
	}
	query := `
		SELECT answer, sources, confidence, cache_id, accepted, edited_answer
		FROM chat_history
		WHERE cache_id = $1 AND answer IS NOT NULL
		ORDER BY question_id
		LIMIT 1
	`
	var (
		b          types.AnswerBundle
		sources    *string
		confidence *float64
	)
	err := p.executor(ctx).QueryRow(ctx, query, cacheID).Scan(&b.Answer, &sources, &confidence, &b.CacheID, &b.Accepted, &b.EditedAnswer)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("cache %s: %w", cacheID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache %s: %w", cacheID, err)
	}
	if sources != nil {
		b.Sources = *sources
	}
	if confidence != nil {
		b.Confidence = *confidence
	}
	return &b, nil
}

func (p *PostgresStore) CorrectCluster(ctx context.Context, questionID int64, c types.ClusterCorrection) (int64, error) {
	if c.Empty() {
		return 0, nil
	}

	var affected int64
	err := p.RunInTx(ctx, func(ctx context.Context) error {
		var cacheID *string
		err := p.executor(ctx).QueryRow(ctx, "SELECT cache_id FROM chat_history WHERE question_id = $1", questionID).Scan(&cacheID)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && cacheID == nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read cache id of question %d: %w", questionID, err)
		}

		if err := p.lockCluster(ctx, *cacheID); err != nil {
			return err
		}

		query := `
			UPDATE chat_history
			SET accepted = COALESCE($2, accepted),
				edited_answer = COALESCE($3, edited_answer)
			WHERE cache_id = $1
		`
		tag, err := p.executor(ctx).Exec(ctx, query, *cacheID, c.Accepted, c.EditedAnswer)
		if err != nil {
			return fmt.Errorf("failed to correct cluster %s: %w", *cacheID, err)
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.logger.Info("cluster_corrected", "question_id", questionID, "rows", affected)
	return affected, nil
}

func (p *PostgresStore) GetRecord(ctx context.Context, questionID int64) (*types.HistoryRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM chat_history WHERE question_id = $1`
	rows, err := p.executor(ctx).Query(ctx, query, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read question %d: %w", questionID, err)
	}
	records, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("question %d: %w", questionID, ErrNotFound)
	}
	return &records[0], nil
}

func (p *PostgresStore) SessionHistory(ctx context.Context, sessionID int64) ([]types.HistoryRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM chat_history WHERE session_id = $1 ORDER BY question_id`
	rows, err := p.executor(ctx).Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session %d history: %w", sessionID, err)
	}
	return collectRecords(rows)
}

// GlobalHistory lists the canonical record of every cluster, newest first.
func (p *PostgresStore) GlobalHistory(ctx context.Context) ([]types.HistoryRecord, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM (
			SELECT DISTINCT ON (cache_id) ` + historyColumns + `
			FROM chat_history
			WHERE cache_id IS NOT NULL AND answer IS NOT NULL
			ORDER BY cache_id, question_id
		) t
		ORDER BY question_id DESC
	`
	rows, err := p.executor(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read global history: %w", err)
	}
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]types.HistoryRecord, error) {
	defer rows.Close()

	var records []types.HistoryRecord
	for rows.Next() {
		var r types.HistoryRecord
		if err := rows.Scan(
			&r.QuestionID,
			&r.SessionID,
			&r.Question,
			&r.Answer,
			&r.Sources,
			&r.Confidence,
			&r.CacheID,
			&r.Accepted,
			&r.EditedAnswer,
			&r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return records, nil
}

package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"qarag/types"

	"golang.org/x/sync/errgroup"
)

type BatchResult struct {
	QuestionID int64
	Question   string
	Bundle     *types.AnswerBundle
	Err        error
}

// Batch answers a list of questions, one pipeline invocation per question.
type Batch struct {
	orch        *Orchestrator
	history     *History
	concurrency int
	logger      *slog.Logger
}

func NewBatch(orch *Orchestrator, history *History, concurrency int, logger *slog.Logger) *Batch {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{
		orch:        orch,
		history:     history,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run records every question as pending in input order, then answers them with at
// most the configured number in flight. A failed question is reported in its result
// and does not stop the others. Header cells and blank lines are skipped.
func (b *Batch) Run(ctx context.Context, sessionID int64, questions []string) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(questions))
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" || isHeader(q) {
			continue
		}
		questionID, err := b.history.CreatePending(ctx, sessionID, q)
		if err != nil {
			return nil, err
		}
		results = append(results, BatchResult{QuestionID: questionID, Question: q})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i := range results {
		r := &results[i]
		g.Go(func() error {
			r.Bundle, r.Err = b.orch.Invoke(gctx, r.Question, r.QuestionID)
			if r.Err != nil {
				b.logger.Warn("batch_question_failed", "question_id", r.QuestionID, "error", r.Err)
			}
			return nil
		})
	}
	_ = g.Wait()

	b.logger.Info("batch_completed", "session_id", sessionID, "questions", len(results))
	return results, nil
}

func isHeader(cell string) bool {
	switch strings.ToLower(cell) {
	case "question", "questions":
		return true
	}
	return false
}

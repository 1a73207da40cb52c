package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"qarag/store"
	"qarag/types"
)

// History exposes reviewer corrections. Each correction lands on every record of the
// corrected question's cache cluster.
type History struct {
	store  store.HistoryStorer
	logger *slog.Logger
}

func NewHistory(s store.HistoryStorer, logger *slog.Logger) *History {
	if logger == nil {
		logger = slog.Default()
	}
	return &History{store: s, logger: logger}
}

// CreatePending records question in sessionID before it is answered.
func (h *History) CreatePending(ctx context.Context, sessionID int64, question string) (int64, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return 0, ErrEmptyQuestion
	}
	return h.store.CreatePending(ctx, sessionID, question)
}

// Accept marks the cluster of questionID as accepted. It returns the number of
// records updated, zero for a pending or unknown question.
func (h *History) Accept(ctx context.Context, questionID int64) (int64, error) {
	accepted := true
	n, err := h.store.CorrectCluster(ctx, questionID, types.ClusterCorrection{Accepted: &accepted})
	if err != nil {
		return 0, err
	}
	h.logger.Info("answer_accepted", "question_id", questionID, "records", n)
	return n, nil
}

// Edit layers newAnswer over the synthesized answer of the whole cluster.
func (h *History) Edit(ctx context.Context, questionID int64, newAnswer string) (int64, error) {
	newAnswer = strings.TrimSpace(newAnswer)
	if newAnswer == "" {
		return 0, ErrEmptyAnswer
	}
	n, err := h.store.CorrectCluster(ctx, questionID, types.ClusterCorrection{EditedAnswer: &newAnswer})
	if err != nil {
		return 0, err
	}
	h.logger.Info("answer_edited", "question_id", questionID, "records", n)
	return n, nil
}

func (h *History) Record(ctx context.Context, questionID int64) (*types.HistoryRecord, error) {
	return h.store.GetRecord(ctx, questionID)
}

func (h *History) Session(ctx context.Context, sessionID int64) ([]types.HistoryRecord, error) {
	return h.store.SessionHistory(ctx, sessionID)
}

func (h *History) Global(ctx context.Context) ([]types.HistoryRecord, error) {
	return h.store.GlobalHistory(ctx)
}

package api

import (
	"context"
	"errors"
	"strconv"

	"qarag/pipeline"
	"qarag/store"
	"qarag/types"

	"github.com/gofiber/fiber/v2"
)

type RequestHandler struct {
	orch     *pipeline.Orchestrator
	history  *pipeline.History
	batch    *pipeline.Batch
	sessions store.SessionStorer
}

func NewRequestHandler(orch *pipeline.Orchestrator, history *pipeline.History, batch *pipeline.Batch, sessions store.SessionStorer) *RequestHandler {
	return &RequestHandler{
		orch:     orch,
		history:  history,
		batch:    batch,
		sessions: sessions,
	}
}

func (h *RequestHandler) HandleAsk(c *fiber.Ctx) error {
	var params types.AskParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	ctx := c.UserContext()
	sessionID, err := h.resolveSession(ctx, params.SessionID, types.ChatTypeChat)
	if err != nil {
		return err
	}
	if err := h.sessions.RenameIfNew(ctx, sessionID, params.Question); err != nil {
		return err
	}

	questionID, bundle, err := h.orch.Ask(ctx, sessionID, params.Question)
	if err != nil {
		if questionID != 0 {
			return PendingError{QuestionID: questionID, Err: err}
		}
		return err
	}
	return c.JSON(types.NewAnswerResponse(sessionID, questionID, params.Question, bundle))
}

func (h *RequestHandler) HandleAccept(c *fiber.Ctx) error {
	questionID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	n, err := h.history.Accept(c.UserContext(), questionID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "updated": n})
}

func (h *RequestHandler) HandleEdit(c *fiber.Ctx) error {
	questionID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var params types.EditParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	n, err := h.history.Edit(c.UserContext(), questionID, params.EditedAnswer)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "updated": n})
}

func (h *RequestHandler) HandleGetQuestion(c *fiber.Ctx) error {
	questionID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	rec, err := h.history.Record(c.UserContext(), questionID)
	if err != nil {
		return err
	}
	return c.JSON(types.NewHistoryEntry(*rec))
}

func (h *RequestHandler) HandleSessionHistory(c *fiber.Ctx) error {
	sessionID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	records, err := h.history.Session(c.UserContext(), sessionID)
	if err != nil {
		return err
	}
	return c.JSON(historyEntries(records))
}

func (h *RequestHandler) HandleGlobalHistory(c *fiber.Ctx) error {
	records, err := h.history.Global(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(historyEntries(records))
}

func (h *RequestHandler) HandleCreateSession(c *fiber.Ctx) error {
	var params types.SessionParams
	if len(c.Body()) > 0 && c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}
	if params.ChatType == "" {
		params.ChatType = types.ChatTypeChat
	}

	sess, err := h.sessions.CreateSession(c.UserContext(), params.ChatType)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sess)
}

func (h *RequestHandler) HandleListSessions(c *fiber.Ctx) error {
	params := types.SessionParams{ChatType: types.ChatType(c.Query("chat_type", string(types.ChatTypeChat)))}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}
	sessions, err := h.sessions.ListSessions(c.UserContext(), params.ChatType)
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []types.Session{}
	}
	return c.JSON(sessions)
}

func (h *RequestHandler) HandleBatch(c *fiber.Ctx) error {
	var params types.BatchParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	ctx := c.UserContext()
	sessionID, err := h.resolveSession(ctx, params.SessionID, types.ChatTypeBatch)
	if err != nil {
		return err
	}

	results, err := h.batch.Run(ctx, sessionID, params.Questions)
	if err != nil {
		return err
	}
	if len(results) > 0 {
		if err := h.sessions.RenameIfNew(ctx, sessionID, results[0].Question); err != nil {
			return err
		}
	}

	resp := types.BatchResponse{SessionID: sessionID, Items: make([]types.BatchItem, 0, len(results))}
	for _, r := range results {
		item := types.BatchItem{QuestionID: r.QuestionID, Question: r.Question}
		if r.Err != nil {
			item.Error = r.Err.Error()
		} else {
			answer := types.NewAnswerResponse(sessionID, r.QuestionID, r.Question, r.Bundle)
			item.Answer = &answer
		}
		resp.Items = append(resp.Items, item)
	}
	return c.JSON(resp)
}

// resolveSession returns sessionID when it exists, or opens a new session of chatType
// when none was given.
func (h *RequestHandler) resolveSession(ctx context.Context, sessionID int64, chatType types.ChatType) (int64, error) {
	if sessionID == 0 {
		sess, err := h.sessions.CreateSession(ctx, chatType)
		if err != nil {
			return 0, err
		}
		return sess.ID, nil
	}
	if _, err := h.sessions.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrNotFound(sessionID, "session")
		}
		return 0, err
	}
	return sessionID, nil
}

func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID()
	}
	return id, nil
}

func historyEntries(records []types.HistoryRecord) []types.HistoryEntry {
	entries := make([]types.HistoryEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, types.NewHistoryEntry(r))
	}
	return entries
}

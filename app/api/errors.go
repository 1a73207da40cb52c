package api

import (
	"errors"
	"fmt"
	"log/slog"

	"qarag/pipeline"
	"qarag/store"
	"qarag/types"

	"github.com/gofiber/fiber/v2"
)

// NewErrorHandler renders API errors as JSON. Domain errors map to client statuses;
// anything unrecognised is logged and reported as 500.
func NewErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var apiErr Error
		if errors.As(err, &apiErr) {
			return c.Status(apiErr.Code).JSON(apiErr)
		}
		var valErr types.ValidationError
		if errors.As(err, &valErr) {
			return c.Status(valErr.Status).JSON(valErr)
		}

		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &fiberErr):
			apiErr = NewError(fiberErr.Code, fiberErr.Message)
		case errors.Is(err, store.ErrNotFound):
			apiErr = NewError(fiber.StatusNotFound, err.Error())
		case errors.Is(err, pipeline.ErrAlreadyAnswered):
			apiErr = NewError(fiber.StatusConflict, err.Error())
		case errors.Is(err, pipeline.ErrEmptyQuestion), errors.Is(err, pipeline.ErrEmptyAnswer):
			apiErr = NewError(fiber.StatusBadRequest, err.Error())
		default:
			apiErr = NewError(fiber.StatusInternalServerError, "internal server error")
		}
		var pending PendingError
		if errors.As(err, &pending) {
			apiErr.QuestionID = pending.QuestionID
		}

		logger.Warn("request_failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", apiErr.Code,
			"error", err.Error(),
		)
		return c.Status(apiErr.Code).JSON(apiErr)
	}
}

type Error struct {
	Code       int    `json:"code"`
	Message    string `json:"error"`
	QuestionID int64  `json:"question_id,omitempty"`
}

func (e Error) Error() string {
	return e.Message
}

// PendingError reports a failure after the question was recorded, so the client
// can look the pending record up later.
type PendingError struct {
	QuestionID int64
	Err        error
}

func (e PendingError) Error() string {
	return fmt.Sprintf("question %d: %v", e.QuestionID, e.Err)
}

func (e PendingError) Unwrap() error {
	return e.Err
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrInvalidID() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid id given",
	}
}

func ErrNotFound[T any](arg T, resource string) Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with %v not found", resource, arg),
	}
}

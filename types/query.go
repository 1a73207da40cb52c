package types

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

type AskParams struct {
	SessionID int64  `json:"session_id" validate:"gte=0"`
	Question  string `json:"question" validate:"required,max=4000"`
}

type EditParams struct {
	EditedAnswer string `json:"edited_answer" validate:"required"`
}

type SessionParams struct {
	ChatType ChatType `json:"chat_type" validate:"omitempty,oneof=chat batch"`
}

type BatchParams struct {
	SessionID int64    `json:"session_id" validate:"gte=0"`
	Questions []string `json:"questions" validate:"required,min=1,max=500,dive,max=4000"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *AskParams) Validate() map[string]string   { return validateStruct(params) }
func (params *EditParams) Validate() map[string]string  { return validateStruct(params) }
func (params *BatchParams) Validate() map[string]string { return validateStruct(params) }

func (params *SessionParams) Validate() map[string]string { return validateStruct(params) }

func validateStruct(s any) map[string]string {
	if err := validate.Struct(s); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

// ValidateConfig checks a config struct using its validate tags.
func ValidateConfig(s any) error {
	if errs := validateStruct(s); len(errs) > 0 {
		return NewValidationError(errs)
	}
	return nil
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: http.StatusUnprocessableEntity,
		Errors: errors,
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Errors)
}

type AnswerResponse struct {
	QuestionID    int64     `json:"question_id"`
	SessionID     int64     `json:"session_id"`
	Question      string    `json:"question"`
	Answer        string    `json:"answer"`
	DisplayAnswer string    `json:"display_answer"`
	Sources       string    `json:"sources"`
	Confidence    float64   `json:"confidence"`
	CacheID       string    `json:"cache_id"`
	Accepted      *bool     `json:"accepted"`
	EditedAnswer  *string   `json:"edited_answer"`
	CacheHit      bool      `json:"cache_hit"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewAnswerResponse(sessionID, questionID int64, question string, b *AnswerBundle) AnswerResponse {
	return AnswerResponse{
		QuestionID:    questionID,
		SessionID:     sessionID,
		Question:      question,
		Answer:        b.Answer,
		DisplayAnswer: b.DisplayAnswer(),
		Sources:       b.Sources,
		Confidence:    b.Confidence,
		CacheID:       b.CacheID,
		Accepted:      b.Accepted,
		EditedAnswer:  b.EditedAnswer,
		CacheHit:      b.CacheHit,
		Timestamp:     time.Now(),
	}
}

type HistoryEntry struct {
	QuestionID    int64    `json:"question_id"`
	Question      string   `json:"question"`
	Answer        *string  `json:"answer"`
	DisplayAnswer string   `json:"display_answer"`
	Sources       *string  `json:"sources"`
	Confidence    *float64 `json:"confidence"`
	CacheID       *string  `json:"cache_id"`
	Accepted      *bool    `json:"accepted"`
	EditedAnswer  *string  `json:"edited_answer"`
	IsEdited      bool     `json:"is_edited"`
	Pending       bool     `json:"pending"`
}

func NewHistoryEntry(r HistoryRecord) HistoryEntry {
	return HistoryEntry{
		QuestionID:    r.QuestionID,
		Question:      r.Question,
		Answer:        r.Answer,
		DisplayAnswer: r.DisplayAnswer(),
		Sources:       r.Sources,
		Confidence:    r.Confidence,
		CacheID:       r.CacheID,
		Accepted:      r.Accepted,
		EditedAnswer:  r.EditedAnswer,
		IsEdited:      r.EditedAnswer != nil,
		Pending:       r.Pending(),
	}
}

type BatchItem struct {
	QuestionID int64           `json:"question_id"`
	Question   string          `json:"question"`
	Answer     *AnswerResponse `json:"answer,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type BatchResponse struct {
	SessionID int64       `json:"session_id"`
	Items     []BatchItem `json:"items"`
}

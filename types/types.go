package types

import (
	"time"
)

type ChatType string

const (
	ChatTypeChat  ChatType = "chat"
	ChatTypeBatch ChatType = "batch"
)

// RetrievedChunk is one passage returned by the document index for a question.
type RetrievedChunk struct {
	Content    string
	Source     string
	Page       int
	Similarity float64
}

// IndexedChunk is a raw document index hit before distance is turned into similarity.
type IndexedChunk struct {
	Content  string
	Source   string
	Page     int
	Distance float64
}

// QuestionMatch is a raw hit from the question index.
type QuestionMatch struct {
	CacheID  string
	Question string
	Distance float64
}

// CacheEntry is a registered cache cluster. Its embedding lives in the question index.
type CacheEntry struct {
	CacheID   string
	Question  string
	CreatedAt time.Time
}

// HistoryRecord is one row of chat_history. Answer-side fields stay nil while the
// question is pending.
type HistoryRecord struct {
	QuestionID   int64
	SessionID    int64
	Question     string
	Answer       *string
	Sources      *string
	Confidence   *float64
	CacheID      *string
	Accepted     *bool
	EditedAnswer *string
	CreatedAt    time.Time
}

func (r HistoryRecord) Pending() bool {
	return r.Answer == nil
}

// DisplayAnswer prefers a reviewer's edit over the synthesized answer.
func (r HistoryRecord) DisplayAnswer() string {
	if r.EditedAnswer != nil {
		return *r.EditedAnswer
	}
	if r.Answer != nil {
		return *r.Answer
	}
	return ""
}

// AnswerBundle is what a pipeline run returns and what a cache hit reads back.
type AnswerBundle struct {
	Answer       string
	Sources      string
	Confidence   float64
	CacheID      string
	Accepted     *bool
	EditedAnswer *string
	CacheHit     bool
}

func (b AnswerBundle) DisplayAnswer() string {
	if b.EditedAnswer != nil {
		return *b.EditedAnswer
	}
	return b.Answer
}

// ClusterCorrection is a reviewer change applied to every record of a cache cluster.
// Nil fields are left untouched.
type ClusterCorrection struct {
	Accepted     *bool
	EditedAnswer *string
}

func (c ClusterCorrection) Empty() bool {
	return c.Accepted == nil && c.EditedAnswer == nil
}

type Session struct {
	ID        int64     `json:"session_id"`
	Name      string    `json:"session_name"`
	ChatType  ChatType  `json:"chat_type"`
	CreatedAt time.Time `json:"created_at"`
}

type PipelineConfig struct {
	TopK                int           `json:"top_k" validate:"gte=1,lte=50"`
	SimilarityThreshold float64       `json:"similarity_threshold" validate:"gte=0,lte=1"`
	CacheLookupTimeout  time.Duration `json:"cache_lookup_timeout"`
	BatchConcurrency    int           `json:"batch_concurrency" validate:"gte=1,lte=32"`
}

type LLMConfig struct {
	Url           string  `json:"llm_url" validate:"required,url"`
	Model         string  `json:"llm_model" validate:"required"`
	Temperature   float64 `json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens     int     `json:"max_tokens" validate:"gte=1"`
	ContextTokens int     `json:"context_tokens" validate:"gte=1"`
	RatePerSec    float64 `json:"rate_per_sec" validate:"gte=0"`
	Timeout       time.Duration
}

type EmbedderConfig struct {
	Url       string `validate:"required,url"`
	Model     string `validate:"required"`
	CacheSize int    `validate:"gte=1"`
	Timeout   time.Duration
}

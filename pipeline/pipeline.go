// Package pipeline answers questions against the document corpus and reuses answers
// of semantically equivalent questions asked before.
//
// A question first goes through the semantic cache. On a hit the canonical answer of
// the matched cluster is copied onto the question's history record. On a miss the
// question is answered from retrieved passages, registered as a new cluster and
// persisted. Reviewer corrections (accept, edit) apply to a whole cluster at once.
package pipeline

import (
	"context"
	"errors"
	"strings"
)

const (
	DefaultSimilarityThreshold = 0.60
	DefaultTopK                = 3

	NoContext = "No relevant context found."
)

var (
	ErrEmptyQuestion   = errors.New("question is empty")
	ErrEmptyAnswer     = errors.New("edited answer is empty")
	ErrAlreadyAnswered = errors.New("question already answered")
)

// Synthesizer produces an answer to question grounded in contextText.
type Synthesizer interface {
	Synthesize(ctx context.Context, contextText, question string) (string, error)
}

// ContextFormatter renders retrieved passages into the context block of the prompt.
type ContextFormatter interface {
	FormatContext(passages []string) string
}

type joinFormatter struct{}

func (joinFormatter) FormatContext(passages []string) string {
	if len(passages) == 0 {
		return NoContext
	}
	return strings.Join(passages, "\n\n")
}

// Similarity converts a cosine distance into a similarity clamped to [0, 1].
func Similarity(distance float64) float64 {
	return max(0, min(1, 1-distance))
}

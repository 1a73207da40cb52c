package agent

import (
	"fmt"
	"log/slog"
	"strings"

	"qarag/pipeline"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const systemPrompt = `You are a QA medical assistant. Answer only from the provided context.`

const promptTemplate = `Use the following pieces of context to answer the question. If you don't know the answer, just say "I don't know", don't try to make up an answer. Provide a summarized and well-formed answer in 2-4 sentences maximum, do not stop mid-sentence. Finish the response completely.

Context:
%s

Question:
%s

Answer:`

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter returns a cl100k_base counter, or a whitespace-based estimate if the
// encoding cannot be loaded.
func NewTokenCounter(logger *slog.Logger) TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		if logger != nil {
			logger.Warn("tiktoken_unavailable", "error", err)
		}
		return WordCounter{}
	}
	return tiktokenCounter{enc: enc}
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// WordCounter approximates tokens by whitespace-separated words.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// PromptBuilder assembles the fixed instruction template around a bounded context.
type PromptBuilder struct {
	counter   TokenCounter
	maxTokens int
}

func NewPromptBuilder(counter TokenCounter, maxContextTokens int) *PromptBuilder {
	if counter == nil {
		counter = WordCounter{}
	}
	return &PromptBuilder{
		counter:   counter,
		maxTokens: maxContextTokens,
	}
}

// FormatContext joins passages with blank lines, stopping before the passage that
// would exceed the token budget. The first passage is always kept.
func (b *PromptBuilder) FormatContext(passages []string) string {
	if len(passages) == 0 {
		return pipeline.NoContext
	}

	var kept []string
	used := 0
	for i, p := range passages {
		n := b.counter.Count(p)
		if i > 0 && b.maxTokens > 0 && used+n > b.maxTokens {
			break
		}
		kept = append(kept, p)
		used += n
	}
	return strings.Join(kept, "\n\n")
}

func (b *PromptBuilder) Build(context, question string) string {
	if strings.TrimSpace(context) == "" {
		context = pipeline.NoContext
	}
	return fmt.Sprintf(promptTemplate, context, strings.TrimSpace(question))
}

func (b *PromptBuilder) System() string {
	return systemPrompt
}

func (b *PromptBuilder) CountTokens(text string) int {
	return b.counter.Count(text)
}

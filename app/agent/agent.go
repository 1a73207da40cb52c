package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"qarag/types"

	"golang.org/x/time/rate"
)

var ErrEmptyResponse = errors.New("llm returned an empty answer")

type GenerateOptions struct {
	Temperature float64  `json:"temperature"`
	NumPredict  int      `json:"num_predict"`
	Stop        []string `json:"stop,omitempty"`
}

type GenerateRequest struct {
	Model   string          `json:"model"`
	System  string          `json:"system"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options GenerateOptions `json:"options"`
}

type GenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// OllamaGenerator synthesizes answers with the Ollama generate API.
type OllamaGenerator struct {
	cfg     types.LLMConfig
	prompts *PromptBuilder
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewOllamaGenerator(cfg types.LLMConfig, prompts *PromptBuilder, logger *slog.Logger) *OllamaGenerator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaGenerator{
		cfg:     cfg,
		prompts: prompts,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

func (g *OllamaGenerator) Synthesize(ctx context.Context, contextText, question string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm rate limit: %w", err)
	}

	start := time.Now()
	prompt := g.prompts.Build(contextText, question)

	reqBody, err := json.Marshal(GenerateRequest{
		Model:  g.cfg.Model,
		System: g.prompts.System(),
		Prompt: prompt,
		Stream: false,
		Options: GenerateOptions{
			Temperature: g.cfg.Temperature,
			NumPredict:  g.cfg.MaxTokens,
			Stop:        []string{"Note"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	g.logger.Debug("llm_request",
		"model", g.cfg.Model,
		"prompt_tokens", g.prompts.CountTokens(prompt),
		"prompt_chars", len(prompt),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Error("llm_request_failed", "error", err, "elapsed", time.Since(start))
		return "", fmt.Errorf("failed to call llm: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	answer := CompleteSentences(decodeGenerate(body))
	if answer == "" {
		return "", ErrEmptyResponse
	}

	g.logger.Info("llm_answer_generated", "elapsed", time.Since(start), "chars", len(answer))
	return answer, nil
}

// decodeGenerate reads a single JSON reply or, when the server streamed anyway,
// concatenates the NDJSON chunks.
func decodeGenerate(body []byte) string {
	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err == nil && genResp.Response != "" {
		return genResp.Response
	}

	var sb strings.Builder
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var chunk GenerateResponse
		if err := decoder.Decode(&chunk); err != nil {
			break
		}
		sb.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	return sb.String()
}

// closers may follow a terminator and still belong to the same sentence.
const closers = "\"')]}\u201d\u2019\u00bb"

// CompleteSentences trims the answer and drops a trailing fragment cut off by the
// token limit. A terminator only ends a sentence when whitespace or the end of
// the text follows it, so "0.5 mg" or "section 2.1" never cut. Text without a
// sentence end is returned as is.
func CompleteSentences(answer string) string {
	answer = strings.TrimSpace(answer)
	end := lastSentenceEnd(answer)
	if end < 0 || end == len(answer) {
		return answer
	}
	return strings.TrimSpace(answer[:end])
}

// lastSentenceEnd returns the byte offset just past the last sentence end,
// closing quotes and brackets included, or -1.
func lastSentenceEnd(s string) int {
	last := -1
	for i := 0; i < len(s); i++ {
		if s[i] != '.' && s[i] != '!' && s[i] != '?' {
			continue
		}
		j := i + 1
		for j < len(s) {
			r, size := utf8.DecodeRuneInString(s[j:])
			if !strings.ContainsRune(closers, r) {
				break
			}
			j += size
		}
		if j == len(s) {
			return j
		}
		if r, _ := utf8.DecodeRuneInString(s[j:]); unicode.IsSpace(r) {
			last = j
		}
		i = j - 1
	}
	return last
}

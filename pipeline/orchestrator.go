package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"qarag/store"
	"qarag/types"

	"golang.org/x/sync/singleflight"
)

type State string

const (
	StateStart          State = "START"
	StateCacheLookup    State = "CACHE_LOOKUP"
	StateCacheHit       State = "CACHE_HIT"
	StateFetchCanonical State = "FETCH_CANONICAL"
	StateCacheMiss      State = "CACHE_MISS"
	StateRetrieve       State = "RETRIEVE"
	StateScore          State = "SCORE"
	StateSynthesize     State = "SYNTHESIZE"
	StateRegisterCache  State = "REGISTER_CACHE"
	StatePersist        State = "PERSIST"
	StateDone           State = "DONE"
)

type Options struct {
	TopK      int
	Formatter ContextFormatter
	Logger    *slog.Logger
}

// Orchestrator runs one question through cache lookup or the retrieve-and-synthesize
// path and persists the outcome on the question's history record.
type Orchestrator struct {
	cache     *SemanticCache
	retriever *Retriever
	synth     Synthesizer
	formatter ContextFormatter
	history   store.HistoryStorer
	topK      int
	inflight  singleflight.Group
	logger    *slog.Logger
}

func NewOrchestrator(cache *SemanticCache, retriever *Retriever, synth Synthesizer, history store.HistoryStorer, opts Options) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Formatter == nil {
		opts.Formatter = joinFormatter{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		cache:     cache,
		retriever: retriever,
		synth:     synth,
		formatter: opts.Formatter,
		history:   history,
		topK:      opts.TopK,
		logger:    opts.Logger,
	}
}

// Ask records question as pending in sessionID and answers it.
func (o *Orchestrator) Ask(ctx context.Context, sessionID int64, question string) (int64, *types.AnswerBundle, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return 0, nil, ErrEmptyQuestion
	}
	questionID, err := o.history.CreatePending(ctx, sessionID, question)
	if err != nil {
		return 0, nil, err
	}
	bundle, err := o.Invoke(ctx, question, questionID)
	return questionID, bundle, err
}

// Invoke answers question for the pending record questionID. Once the miss path has
// started it runs to completion even if ctx is cancelled.
func (o *Orchestrator) Invoke(ctx context.Context, question string, questionID int64) (*types.AnswerBundle, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	rec, err := o.history.GetRecord(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !rec.Pending() {
		return nil, fmt.Errorf("question %d: %w", questionID, ErrAlreadyAnswered)
	}

	start := time.Now()
	path := []State{StateStart, StateCacheLookup}

	bundle, hit := o.fromCache(ctx, question)
	shared := false
	if hit {
		path = append(path, StateCacheHit, StateFetchCanonical)
	} else {
		path = append(path, StateCacheMiss, StateRetrieve, StateScore, StateSynthesize, StateRegisterCache)

		detached := context.WithoutCancel(ctx)
		v, err, dup := o.inflight.Do(IdempotencyKey(question), func() (any, error) {
			return o.answer(detached, question)
		})
		if err != nil {
			o.logger.Error("pipeline_failed", "question_id", questionID, "error", err, "elapsed", time.Since(start))
			return nil, err
		}
		leader := v.(*types.AnswerBundle)
		copied := *leader
		bundle, shared = &copied, dup
	}

	path = append(path, StatePersist)
	if err := o.history.Resolve(context.WithoutCancel(ctx), questionID, *bundle); err != nil {
		if errors.Is(err, store.ErrAlreadyResolved) {
			return nil, fmt.Errorf("question %d: %w", questionID, ErrAlreadyAnswered)
		}
		return nil, fmt.Errorf("persisting answer: %w", err)
	}
	path = append(path, StateDone)

	o.logger.Info("pipeline_completed",
		"question_id", questionID,
		"cache_hit", hit,
		"shared", shared,
		"cache_id", bundle.CacheID,
		"confidence", bundle.Confidence,
		"path", joinStates(path),
		"elapsed", time.Since(start),
	)
	return bundle, nil
}

// fromCache returns the canonical answer of the matching cluster. A cluster whose
// first answer is not persisted yet counts as a miss.
func (o *Orchestrator) fromCache(ctx context.Context, question string) (*types.AnswerBundle, bool) {
	cacheID, ok := o.cache.Lookup(ctx, question)
	if !ok {
		return nil, false
	}

	canonical, err := o.history.ReadByCacheID(ctx, cacheID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			o.logger.Warn("canonical_fetch_failed", "cache_id", cacheID, "error", err)
		}
		return nil, false
	}
	canonical.CacheHit = true
	return canonical, true
}

func (o *Orchestrator) answer(ctx context.Context, question string) (*types.AnswerBundle, error) {
	chunks, err := o.retriever.Retrieve(ctx, question, o.topK)
	if err != nil {
		return nil, err
	}

	bundle := &types.AnswerBundle{
		Sources:    FormatSources(chunks),
		Confidence: Confidence(chunks),
		CacheID:    NewCacheID(),
	}

	// Nothing to ground an answer in: reply with the fallback and keep it out of the
	// question index so the question is retried once the corpus can answer it.
	if len(chunks) == 0 {
		bundle.Answer = NoContext
		return bundle, nil
	}

	passages := make([]string, len(chunks))
	for i, c := range chunks {
		passages[i] = c.Content
	}

	answer, err := o.synth.Synthesize(ctx, o.formatter.FormatContext(passages), question)
	if err != nil {
		return nil, fmt.Errorf("synthesizing answer: %w", err)
	}
	bundle.Answer = answer

	if err := o.cache.Register(ctx, question, bundle.CacheID); err != nil {
		o.logger.Warn("cache_register_failed", "cache_id", bundle.CacheID, "error", err)
	}
	return bundle, nil
}

// IdempotencyKey identifies textually identical questions regardless of case,
// spacing and trailing punctuation.
func IdempotencyKey(question string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	normalized = strings.TrimRight(normalized, " ?!.")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func joinStates(path []State) string {
	parts := make([]string, len(path))
	for i, s := range path {
		parts[i] = string(s)
	}
	return strings.Join(parts, ">")
}

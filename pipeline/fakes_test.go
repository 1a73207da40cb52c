package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"

	"qarag/pipeline"
	"qarag/store"
	"qarag/types"

	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeEmbedder maps each known question to a unit vector at the given cosine
// similarity to the x axis.
type fakeEmbedder struct {
	mu    sync.Mutex
	vecs  map[string][]float32
	err   error
	calls int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vecs: make(map[string][]float32)}
}

func (e *fakeEmbedder) set(text string, cosToAxis float64) {
	e.vecs[text] = []float32{float32(cosToAxis), float32(math.Sqrt(1 - cosToAxis*cosToAxis))}
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vecs[text]; ok {
		return v, nil
	}
	return []float32{0, 1}, nil
}

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeDocs struct {
	hits []types.IndexedChunk
	err  error
}

func (d *fakeDocs) SearchChunks(_ context.Context, _ []float32, k int) ([]types.IndexedChunk, error) {
	if d.err != nil {
		return nil, d.err
	}
	if k < len(d.hits) {
		return d.hits[:k], nil
	}
	return d.hits, nil
}

type fakeSynth struct {
	mu       sync.Mutex
	answer   string
	err      error
	calls    int
	contexts []string
	hook     func(ctx context.Context)
}

func (s *fakeSynth) Synthesize(ctx context.Context, contextText, question string) (string, error) {
	if s.hook != nil {
		s.hook(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.contexts = append(s.contexts, contextText)
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func (s *fakeSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// failingQuestions wraps a question index whose writes fail.
type failingQuestions struct {
	store.QuestionIndex
}

func (failingQuestions) AddQuestion(context.Context, types.CacheEntry, []float32) error {
	return errors.New("question index is read-only")
}

// countingQuestions records how many entries were added to the question index.
type countingQuestions struct {
	store.QuestionIndex
	mu    sync.Mutex
	added int
}

func (q *countingQuestions) AddQuestion(ctx context.Context, entry types.CacheEntry, embedding []float32) error {
	q.mu.Lock()
	q.added++
	q.mu.Unlock()
	return q.QuestionIndex.AddQuestion(ctx, entry, embedding)
}

func (q *countingQuestions) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.added
}

type harness struct {
	store    *store.MemoryStore
	embedder *fakeEmbedder
	docs     *fakeDocs
	synth    *fakeSynth
	orch     *pipeline.Orchestrator
	session  int64
}

func distances(sims ...float64) []types.IndexedChunk {
	hits := make([]types.IndexedChunk, len(sims))
	for i, s := range sims {
		hits[i] = types.IndexedChunk{
			Content:  "passage " + strings.Repeat("x", i+1),
			Source:   "docs/drug-x-label.pdf",
			Page:     i,
			Distance: 1 - s,
		}
	}
	return hits
}

func newHarness(t *testing.T, questions store.QuestionIndex) *harness {
	t.Helper()
	st := store.NewMemoryStore()
	h := &harness{
		store:    st,
		embedder: newFakeEmbedder(),
		docs:     &fakeDocs{hits: distances(0.9, 0.75, 0.64)},
		synth:    &fakeSynth{answer: "Give 5 mg twice daily."},
	}
	if questions == nil {
		questions = st
	}
	cache := pipeline.NewSemanticCache(h.embedder, questions, pipeline.DefaultSimilarityThreshold, 0, discard)
	retriever := pipeline.NewRetriever(h.embedder, h.docs, discard)
	h.orch = pipeline.NewOrchestrator(cache, retriever, h.synth, st, pipeline.Options{Logger: discard})

	sess, err := st.CreateSession(context.Background(), types.ChatTypeChat)
	require.NoError(t, err)
	h.session = sess.ID
	return h
}

func (h *harness) pending(t *testing.T, question string) int64 {
	t.Helper()
	id, err := h.store.CreatePending(context.Background(), h.session, question)
	require.NoError(t, err)
	return id
}

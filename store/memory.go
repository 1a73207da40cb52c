package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"qarag/types"
)

type memChunk struct {
	chunk types.IndexedChunk
	vec   []float32
}

type memQuestion struct {
	entry types.CacheEntry
	vec   []float32
}

// MemoryStore is an in-process backend with brute-force cosine search. It is meant
// for local runs without Postgres and for tests.
type MemoryStore struct {
	mu        sync.RWMutex
	chunks    []memChunk
	questions []memQuestion
	records   map[int64]*types.HistoryRecord
	sessions  map[int64]*types.Session
	nextQID   int64
	nextSID   int64
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[int64]*types.HistoryRecord),
		sessions: make(map[int64]*types.Session),
		now:      time.Now,
	}
}

// AddChunk loads a document chunk into the index.
func (s *MemoryStore) AddChunk(content, source string, page int, vec []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, memChunk{
		chunk: types.IndexedChunk{Content: content, Source: source, Page: page},
		vec:   vec,
	})
}

func (s *MemoryStore) SearchChunks(_ context.Context, vec []float32, k int) ([]types.IndexedChunk, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]types.IndexedChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		hit := c.chunk
		hit.Distance = cosineDistance(c.vec, vec)
		results = append(results, hit)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if k < len(results) {
		results = results[:max(k, 0)]
	}
	return results, nil
}

func (s *MemoryStore) NearestQuestion(_ context.Context, vec []float32) (*types.QuestionMatch, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *types.QuestionMatch
	for _, q := range s.questions {
		d := cosineDistance(q.vec, vec)
		if best == nil || d < best.Distance {
			best = &types.QuestionMatch{CacheID: q.entry.CacheID, Question: q.entry.Question, Distance: d}
		}
	}
	return best, nil
}

func (s *MemoryStore) AddQuestion(_ context.Context, entry types.CacheEntry, vec []float32) error {
	if entry.CacheID == "" {
		return fmt.Errorf("cache id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range s.questions {
		if q.entry.CacheID == entry.CacheID {
			return fmt.Errorf("cache id %s already registered", entry.CacheID)
		}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.questions = append(s.questions, memQuestion{entry: entry, vec: vec})
	return nil
}

func (s *MemoryStore) CreatePending(_ context.Context, sessionID int64, question string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return 0, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	s.nextQID++
	s.records[s.nextQID] = &types.HistoryRecord{
		QuestionID: s.nextQID,
		SessionID:  sessionID,
		Question:   question,
		CreatedAt:  s.now(),
	}
	return s.nextQID, nil
}

func (s *MemoryStore) Resolve(_ context.Context, questionID int64, b types.AnswerBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[questionID]
	if !ok {
		return fmt.Errorf("question %d: %w", questionID, ErrNotFound)
	}
	if r.Answer != nil {
		return fmt.Errorf("question %d: %w", questionID, ErrAlreadyResolved)
	}

	accepted, edited := b.Accepted, b.EditedAnswer
	if canonical := s.canonicalLocked(b.CacheID); canonical != nil {
		accepted, edited = canonical.Accepted, canonical.EditedAnswer
	}

	r.Answer = ptr(b.Answer)
	r.Sources = ptr(b.Sources)
	r.Confidence = ptr(b.Confidence)
	if b.CacheID != "" {
		r.CacheID = ptr(b.CacheID)
	}
	r.Accepted = copyPtr(accepted)
	r.EditedAnswer = copyPtr(edited)
	return nil
}

func (s *MemoryStore) ReadByCacheID(_ context.Context, cacheID string) (*types.AnswerBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.canonicalLocked(cacheID)
	if r == nil {
		return nil, fmt.Errorf("cache %s: %w", cacheID, ErrNotFound)
	}
	b := &types.AnswerBundle{
		Answer:       *r.Answer,
		CacheID:      *r.CacheID,
		Accepted:     copyPtr(r.Accepted),
		EditedAnswer: copyPtr(r.EditedAnswer),
	}
	if r.Sources != nil {
		b.Sources = *r.Sources
	}
	if r.Confidence != nil {
		b.Confidence = *r.Confidence
	}
	return b, nil
}

func (s *MemoryStore) canonicalLocked(cacheID string) *types.HistoryRecord {
	if cacheID == "" {
		return nil
	}
	var best *types.HistoryRecord
	for _, r := range s.records {
		if r.CacheID == nil || *r.CacheID != cacheID || r.Answer == nil {
			continue
		}
		if best == nil || r.QuestionID < best.QuestionID {
			best = r
		}
	}
	return best
}

func (s *MemoryStore) CorrectCluster(_ context.Context, questionID int64, c types.ClusterCorrection) (int64, error) {
	if c.Empty() {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[questionID]
	if !ok || r.CacheID == nil {
		return 0, nil
	}
	cacheID := *r.CacheID

	var affected int64
	for _, m := range s.records {
		if m.CacheID == nil || *m.CacheID != cacheID {
			continue
		}
		if c.Accepted != nil {
			m.Accepted = copyPtr(c.Accepted)
		}
		if c.EditedAnswer != nil {
			m.EditedAnswer = copyPtr(c.EditedAnswer)
		}
		affected++
	}
	return affected, nil
}

func (s *MemoryStore) GetRecord(_ context.Context, questionID int64) (*types.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[questionID]
	if !ok {
		return nil, fmt.Errorf("question %d: %w", questionID, ErrNotFound)
	}
	out := cloneRecord(r)
	return &out, nil
}

func (s *MemoryStore) SessionHistory(_ context.Context, sessionID int64) ([]types.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.HistoryRecord
	for _, r := range s.records {
		if r.SessionID == sessionID {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (s *MemoryStore) GlobalHistory(_ context.Context) ([]types.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []types.HistoryRecord
	for _, r := range s.records {
		if r.CacheID == nil || seen[*r.CacheID] {
			continue
		}
		seen[*r.CacheID] = true
		if c := s.canonicalLocked(*r.CacheID); c != nil {
			out = append(out, cloneRecord(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID > out[j].QuestionID })
	return out, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, chatType types.ChatType) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSID++
	sess := &types.Session{ID: s.nextSID, Name: DefaultSessionName, ChatType: chatType, CreatedAt: s.now()}
	s.sessions[sess.ID] = sess
	out := *sess
	return &out, nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID int64) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	out := *sess
	return &out, nil
}

func (s *MemoryStore) RenameIfNew(_ context.Context, sessionID int64, firstQuestion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.Name != DefaultSessionName {
		return nil
	}
	if name := SessionName(firstQuestion); name != "" {
		sess.Name = name
	}
	return nil
}

func (s *MemoryStore) ListSessions(_ context.Context, chatType types.ChatType) ([]types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Session
	for _, sess := range s.sessions {
		if sess.ChatType == chatType {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// cosineDistance matches pgvector's <=> operator: 1 - cos(a, b), in [0, 2].
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func cloneRecord(r *types.HistoryRecord) types.HistoryRecord {
	out := *r
	out.Answer = copyPtr(r.Answer)
	out.Sources = copyPtr(r.Sources)
	out.Confidence = copyPtr(r.Confidence)
	out.CacheID = copyPtr(r.CacheID)
	out.Accepted = copyPtr(r.Accepted)
	out.EditedAnswer = copyPtr(r.EditedAnswer)
	return out
}

func ptr[T any](v T) *T {
	return &v
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ Storer = (*MemoryStore)(nil)

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"qarag/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bundle(cacheID, answer string) types.AnswerBundle {
	return types.AnswerBundle{Answer: answer, Sources: "[1] a.pdf (Page 1)", Confidence: 71.5, CacheID: cacheID}
}

func newSession(t *testing.T, s *MemoryStore) int64 {
	t.Helper()
	sess, err := s.CreateSession(context.Background(), types.ChatTypeChat)
	require.NoError(t, err)
	return sess.ID
}

func TestMemoryStore_ResolveOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sid := newSession(t, s)

	id, err := s.CreatePending(ctx, sid, "q")
	require.NoError(t, err)

	rec, err := s.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.Pending())
	assert.Nil(t, rec.CacheID)

	require.NoError(t, s.Resolve(ctx, id, bundle("c1", "a")))
	assert.ErrorIs(t, s.Resolve(ctx, id, bundle("c2", "b")), ErrAlreadyResolved)
	assert.ErrorIs(t, s.Resolve(ctx, 404, bundle("c2", "b")), ErrNotFound)

	rec, err = s.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a", *rec.Answer)
	assert.Equal(t, "c1", *rec.CacheID)
	assert.Equal(t, 71.5, *rec.Confidence)
}

func TestMemoryStore_CreatePendingUnknownSession(t *testing.T) {
	_, err := NewMemoryStore().CreatePending(context.Background(), 7, "q")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_CanonicalIsLowestAnsweredID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sid := newSession(t, s)

	pending, err := s.CreatePending(ctx, sid, "first, never answered")
	require.NoError(t, err)
	second, err := s.CreatePending(ctx, sid, "second")
	require.NoError(t, err)
	third, err := s.CreatePending(ctx, sid, "third")
	require.NoError(t, err)

	_, err = s.ReadByCacheID(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Resolve(ctx, third, bundle("c1", "from third")))
	require.NoError(t, s.Resolve(ctx, second, bundle("c1", "from second")))

	b, err := s.ReadByCacheID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "from second", b.Answer)
	assert.False(t, b.CacheHit)

	rec, err := s.GetRecord(ctx, pending)
	require.NoError(t, err)
	assert.True(t, rec.Pending())
}

func TestMemoryStore_CorrectCluster(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sid := newSession(t, s)

	var cluster []int64
	for i := range 3 {
		id, err := s.CreatePending(ctx, sid, fmt.Sprintf("q%d", i))
		require.NoError(t, err)
		require.NoError(t, s.Resolve(ctx, id, bundle("c1", "a")))
		cluster = append(cluster, id)
	}
	other, err := s.CreatePending(ctx, sid, "other")
	require.NoError(t, err)
	require.NoError(t, s.Resolve(ctx, other, bundle("c2", "b")))
	pending, err := s.CreatePending(ctx, sid, "pending")
	require.NoError(t, err)

	accepted, edit := true, "fixed"
	n, err := s.CorrectCluster(ctx, cluster[1], types.ClusterCorrection{Accepted: &accepted})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = s.CorrectCluster(ctx, cluster[2], types.ClusterCorrection{EditedAnswer: &edit})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	for _, id := range cluster {
		rec, err := s.GetRecord(ctx, id)
		require.NoError(t, err)
		assert.True(t, *rec.Accepted, "edit must not clear acceptance")
		assert.Equal(t, "fixed", *rec.EditedAnswer)
		assert.Equal(t, "a", *rec.Answer)
	}

	rec, err := s.GetRecord(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, rec.Accepted)

	n, err = s.CorrectCluster(ctx, pending, types.ClusterCorrection{Accepted: &accepted})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.CorrectCluster(ctx, 999, types.ClusterCorrection{Accepted: &accepted})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.CorrectCluster(ctx, cluster[0], types.ClusterCorrection{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_LateMemberInheritsCorrections(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sid := newSession(t, s)

	first, err := s.CreatePending(ctx, sid, "q")
	require.NoError(t, err)
	require.NoError(t, s.Resolve(ctx, first, bundle("c1", "a")))

	edit := "fixed"
	_, err = s.CorrectCluster(ctx, first, types.ClusterCorrection{EditedAnswer: &edit})
	require.NoError(t, err)

	late, err := s.CreatePending(ctx, sid, "q again")
	require.NoError(t, err)
	require.NoError(t, s.Resolve(ctx, late, bundle("c1", "a")))

	rec, err := s.GetRecord(ctx, late)
	require.NoError(t, err)
	require.NotNil(t, rec.EditedAnswer)
	assert.Equal(t, "fixed", *rec.EditedAnswer)
}

func TestMemoryStore_ConcurrentCorrectionsStayConsistent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sid := newSession(t, s)

	var ids []int64
	for i := range 5 {
		id, err := s.CreatePending(ctx, sid, fmt.Sprintf("q%d", i))
		require.NoError(t, err)
		require.NoError(t, s.Resolve(ctx, id, bundle("c1", "a")))
		ids = append(ids, id)
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			edit := fmt.Sprintf("edit %d", i)
			_, err := s.CorrectCluster(ctx, id, types.ClusterCorrection{EditedAnswer: &edit})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records, err := s.SessionHistory(ctx, sid)
	require.NoError(t, err)
	require.Len(t, records, 5)
	for _, r := range records[1:] {
		assert.Equal(t, *records[0].EditedAnswer, *r.EditedAnswer)
	}
}

func TestMemoryStore_RecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sid := newSession(t, s)
	id, err := s.CreatePending(ctx, sid, "q")
	require.NoError(t, err)
	require.NoError(t, s.Resolve(ctx, id, bundle("c1", "a")))

	rec, err := s.GetRecord(ctx, id)
	require.NoError(t, err)
	*rec.Answer = "mutated"

	again, err := s.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a", *again.Answer)
}

func TestMemoryStore_Indexes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	match, err := s.NearestQuestion(ctx, []float32{1, 0})
	require.NoError(t, err)
	assert.Nil(t, match)

	require.NoError(t, s.AddQuestion(ctx, types.CacheEntry{CacheID: "c1", Question: "x"}, []float32{1, 0}))
	require.NoError(t, s.AddQuestion(ctx, types.CacheEntry{CacheID: "c2", Question: "y"}, []float32{0, 1}))
	assert.Error(t, s.AddQuestion(ctx, types.CacheEntry{CacheID: "c1", Question: "z"}, []float32{1, 1}))
	assert.Error(t, s.AddQuestion(ctx, types.CacheEntry{Question: "z"}, []float32{1, 1}))

	match, err = s.NearestQuestion(ctx, []float32{0.2, 0.9})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "c2", match.CacheID)

	s.AddChunk("alpha", "a.pdf", 0, []float32{1, 0})
	s.AddChunk("beta", "b.pdf", 3, []float32{0.7, 0.7})
	s.AddChunk("gamma", "c.pdf", 1, []float32{0, 1})

	hits, err := s.SearchChunks(ctx, []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "alpha", hits[0].Content)
	assert.Equal(t, "beta", hits[1].Content)
	assert.Less(t, hits[0].Distance, hits[1].Distance)

	_, err = s.SearchChunks(ctx, nil, 2)
	assert.Error(t, err)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, cosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, cosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 2.0, cosineDistance([]float32{1}, []float32{1, 0}))
	assert.Equal(t, 1.0, cosineDistance([]float32{0, 0}, []float32{1, 0}))
}

func TestMemoryStore_GlobalHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sid := newSession(t, s)

	for i, c := range []string{"c1", "c1", "c2", "c1"} {
		id, err := s.CreatePending(ctx, sid, fmt.Sprintf("q%d", i))
		require.NoError(t, err)
		require.NoError(t, s.Resolve(ctx, id, bundle(c, "a")))
	}
	_, err := s.CreatePending(ctx, sid, "pending")
	require.NoError(t, err)

	global, err := s.GlobalHistory(ctx)
	require.NoError(t, err)
	require.Len(t, global, 2)
	assert.Equal(t, "q2", global[0].Question)
	assert.Equal(t, "q0", global[1].Question)
}

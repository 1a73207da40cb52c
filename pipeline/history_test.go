package pipeline_test

import (
	"context"
	"testing"

	"qarag/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_CorrectionsApplyToCluster(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.embedder.set(q1, 1)
	h.embedder.set(q2, 0.9)
	h.embedder.set(q3, 0.2)

	ids := make([]int64, 0, 3)
	for _, q := range []string{q1, q2, q1} {
		id := h.pending(t, q)
		_, err := h.orch.Invoke(ctx, q, id)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	outsider := h.pending(t, q3)
	_, err := h.orch.Invoke(ctx, q3, outsider)
	require.NoError(t, err)

	history := pipeline.NewHistory(h.store, discard)

	n, err := history.Accept(ctx, ids[2])
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = history.Edit(ctx, ids[1], "  Corrected answer.  ")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	for _, id := range ids {
		rec, err := history.Record(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, rec.Accepted)
		assert.True(t, *rec.Accepted)
		require.NotNil(t, rec.EditedAnswer)
		assert.Equal(t, "Corrected answer.", *rec.EditedAnswer)
		assert.Equal(t, "Give 5 mg twice daily.", *rec.Answer)
	}

	other, err := history.Record(ctx, outsider)
	require.NoError(t, err)
	assert.Nil(t, other.Accepted)
	assert.Nil(t, other.EditedAnswer)
}

func TestHistory_EditRejectsEmpty(t *testing.T) {
	h := newHarness(t, nil)
	_, err := pipeline.NewHistory(h.store, discard).Edit(context.Background(), 1, "   ")
	assert.ErrorIs(t, err, pipeline.ErrEmptyAnswer)
}

func TestHistory_PendingOrUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	history := pipeline.NewHistory(h.store, discard)

	id := h.pending(t, q1)
	n, err := history.Accept(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = history.Edit(ctx, 12345, "text")
	require.NoError(t, err)
	assert.Zero(t, n)

	rec, err := history.Record(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, rec.Accepted)
}

func TestHistory_GlobalShowsOneRowPerCluster(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.embedder.set(q1, 1)
	h.embedder.set(q2, 0.9)
	h.embedder.set(q3, 0.1)

	for _, q := range []string{q1, q2, q3} {
		_, _, err := h.orch.Ask(ctx, h.session, q)
		require.NoError(t, err)
	}

	history := pipeline.NewHistory(h.store, discard)
	global, err := history.Global(ctx)
	require.NoError(t, err)
	require.Len(t, global, 2)
	assert.Equal(t, q3, global[0].Question)
	assert.Equal(t, q1, global[1].Question)

	session, err := history.Session(ctx, h.session)
	require.NoError(t, err)
	assert.Len(t, session, 3)
}

func TestHistory_CreatePending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	history := pipeline.NewHistory(h.store, discard)

	_, err := history.CreatePending(ctx, h.session, "  ")
	assert.ErrorIs(t, err, pipeline.ErrEmptyQuestion)

	id, err := history.CreatePending(ctx, h.session, "  "+q1)
	require.NoError(t, err)
	rec, err := history.Record(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, q1, rec.Question)
	assert.True(t, rec.Pending())
}

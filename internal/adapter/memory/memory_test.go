package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/listing-scraper/internal/entity"
	"github.com/user/listing-scraper/internal/repository"
)

func TestQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewQueueRepo()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, repository.ErrQueueEmpty)

	require.NoError(t, q.Push(ctx, entity.SearchTask{ID: "1", Term: "a", Locality: "x"}))
	require.NoError(t, q.Push(ctx, entity.SearchTask{ID: "2", Term: "b", Locality: "x"}))

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, size)

	first, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", first.ID)
	second, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", second.ID)

	_, err = q.Pop(ctx)
	assert.ErrorIs(t, err, repository.ErrQueueEmpty)
}

func TestStatusSaveCopies(t *testing.T) {
	ctx := context.Background()
	r := NewStatusRepo()

	_, err := r.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrStatusNotFound)

	st := &entity.SessionStatus{TaskID: "1", Status: entity.StatusRunning, UpdatedAt: time.Now()}
	require.NoError(t, r.Save(ctx, st))
	st.Status = entity.StatusFailed

	got, err := r.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRunning, got.Status)
}

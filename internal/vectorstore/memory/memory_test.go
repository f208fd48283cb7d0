package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_QueryOrdersBySimilarity(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "exact", []float32{1, 0, 0}, nil))
	require.NoError(t, s.Upsert(ctx, "close", []float32{0.9, 0.1, 0}, nil))
	require.NoError(t, s.Upsert(ctx, "orthogonal", []float32{0, 1, 0}, nil))

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "exact", matches[0].DocID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, "close", matches[1].DocID)
	assert.Equal(t, "orthogonal", matches[2].DocID)
	assert.InDelta(t, 0.0, matches[2].Score, 1e-9)
}

func TestStore_LimitAndUpsertReplace(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "a", []float32{0, 1}, nil))
	require.NoError(t, s.Upsert(ctx, "b", []float32{1, 0}, nil))
	// replace a with a better-matching vector
	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 0}, nil))

	matches, err := s.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].DocID)
}

func TestStore_Delete(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "a", []float32{1}, nil))
	require.NoError(t, s.Delete(ctx, "a"))
	// deleting again is a no-op
	require.NoError(t, s.Delete(ctx, "a"))

	matches, err := s.Query(ctx, []float32{1}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

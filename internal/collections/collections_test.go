package collections

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/wavebot/internal/state"
)

func setupTestCollections(t *testing.T) *Collections {
	t.Helper()
	m, err := state.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return New(m.DB(), zerolog.Nop())
}

func reverse(n int, swap func(i, j int)) {
	for i := range n / 2 {
		swap(i, n-1-i)
	}
}

func TestFindOrCreate(t *testing.T) {
	c := setupTestCollections(t)
	ctx := context.Background()

	_, err := c.FindByName(ctx, "user", "mix")
	require.ErrorIs(t, err, ErrNotFound)

	id, err := c.FindOrCreate(ctx, "user", "mix")
	require.NoError(t, err)

	again, err := c.FindOrCreate(ctx, "user", "mix")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	other, err := c.FindOrCreate(ctx, "someone", "mix")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	list, err := c.List(ctx, "user")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "mix", list[0].Name)
}

func TestSync(t *testing.T) {
	c := setupTestCollections(t)
	ctx := context.Background()
	id, err := c.Create(ctx, "user", "mix")
	require.NoError(t, err)

	removed, added, err := c.Sync(ctx, id, []string{"a", "b", "c", "b"})
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, 3, added)

	removed, added, err = c.Sync(ctx, id, []string{"c", "d", "a"})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, removed)
	assert.Equal(t, 1, added)

	ids, err := c.TrackIDs(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, ids)

	tracks, err := c.Tracks(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, tracks[2].Position)
	assert.Equal(t, 3, tracks[2].OriginalPosition)

	n, err := c.TrackCount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestShuffleAndRestore(t *testing.T) {
	c := setupTestCollections(t)
	ctx := context.Background()
	id, err := c.Create(ctx, "user", "mix")
	require.NoError(t, err)
	_, _, err = c.Sync(ctx, id, []string{"a", "b", "c", "d"})
	require.NoError(t, err)

	require.NoError(t, c.Shuffle(ctx, id, reverse))

	ids, err := c.TrackIDs(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids)

	shuffled, err := c.IsShuffled(ctx, id)
	require.NoError(t, err)
	assert.True(t, shuffled)

	require.NoError(t, c.RestoreOrder(ctx, id))

	ids, err = c.TrackIDs(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)

	shuffled, err = c.IsShuffled(ctx, id)
	require.NoError(t, err)
	assert.False(t, shuffled)
}

func TestDelete_CascadesTracks(t *testing.T) {
	c := setupTestCollections(t)
	ctx := context.Background()
	id, err := c.Create(ctx, "user", "mix")
	require.NoError(t, err)
	_, _, err = c.Sync(ctx, id, []string{"a"})
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, id))

	n, err := c.TrackCount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

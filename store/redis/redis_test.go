package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/smallnest/agent101/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCheckpointStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s := New(Options{Addr: mr.Addr()})
	defer s.Close()

	ctx := context.Background()
	for _, step := range []int{2, 1} {
		cp, err := store.NewCheckpoint("run-123", step, "choose", map[string]any{"step": step})
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, cp))
	}

	loaded, err := s.Load(ctx, "run-123-0001")
	require.NoError(t, err)
	assert.Equal(t, "run-123", loaded.RunID)
	assert.Equal(t, "choose", loaded.Node)
	assert.JSONEq(t, `{"step":1}`, string(loaded.State))

	list, err := s.List(ctx, "run-123")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Step)
	assert.Equal(t, 2, list[1].Step)

	require.NoError(t, s.Delete(ctx, "run-123-0001"))
	_, err = s.Load(ctx, "run-123-0001")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, s.Delete(ctx, "run-123-0001"))

	list, err = s.List(ctx, "run-123")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.Clear(ctx, "run-123"))
	list, err = s.List(ctx, "run-123")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.False(t, mr.Exists("agent101:run:run-123:checkpoints"))
}

func TestRedisCheckpointStoreTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s := New(Options{Addr: mr.Addr(), Prefix: "test:", TTL: time.Minute})
	ctx := context.Background()

	cp, err := store.NewCheckpoint("r", 1, "plan", nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, cp))

	assert.Equal(t, time.Minute, mr.TTL("test:checkpoint:r-0001"))
	mr.FastForward(2 * time.Minute)

	list, err := s.List(ctx, "r")
	require.NoError(t, err)
	assert.Empty(t, list)
}

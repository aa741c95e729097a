package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/smallnest/agent101/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSqliteCheckpointStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	s, err := New(Options{Path: path})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for _, step := range []int{3, 1, 2} {
		cp, err := store.NewCheckpoint("run-x", step, "execute", map[string]int{"i": step})
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, cp))
	}

	// upsert
	cp, err := store.NewCheckpoint("run-x", 2, "choose", map[string]int{"i": 20})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, cp))

	loaded, err := s.Load(ctx, "run-x-0002")
	require.NoError(t, err)
	assert.Equal(t, "choose", loaded.Node)
	assert.JSONEq(t, `{"i":20}`, string(loaded.State))

	list, err := s.List(ctx, "run-x")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{list[0].Step, list[1].Step, list[2].Step})

	require.NoError(t, s.Delete(ctx, "run-x-0001"))
	_, err = s.Load(ctx, "run-x-0001")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Clear(ctx, "run-x"))
	list, err = s.List(ctx, "run-x")
	require.NoError(t, err)
	assert.Empty(t, list)
}

package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/smallnest/agent101/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresCheckpointStore_Save(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock, "checkpoints")

	cp, err := store.NewCheckpoint("run-1", 1, "plan", map[string]any{"question": "q"})
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO checkpoints")).
		WithArgs(cp.ID, "run-1", 1, "plan", []byte(cp.State), cp.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Save(context.Background(), cp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_Load(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock, "checkpoints")
	now := time.Now()

	rows := pgxmock.NewRows([]string{"id", "run_id", "step", "node", "state", "created_at"}).
		AddRow("run-1-0001", "run-1", 1, "plan", []byte(`{"question":"q"}`), now)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, run_id, step, node, state, created_at FROM checkpoints WHERE id = $1")).
		WithArgs("run-1-0001").
		WillReturnRows(rows)

	loaded, err := s.Load(context.Background(), "run-1-0001")
	require.NoError(t, err)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, "plan", loaded.Node)
	assert.JSONEq(t, `{"question":"q"}`, string(loaded.State))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_LoadNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock, "")
	mock.ExpectQuery(regexp.QuoteMeta("FROM checkpoints WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgresCheckpointStore_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock, "checkpoints")
	now := time.Now()

	rows := pgxmock.NewRows([]string{"id", "run_id", "step", "node", "state", "created_at"}).
		AddRow("run-1-0001", "run-1", 1, "plan", []byte(`{}`), now).
		AddRow("run-1-0002", "run-1", 2, "choose", []byte(`{}`), now)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE run_id = $1 ORDER BY step ASC")).
		WithArgs("run-1").
		WillReturnRows(rows)

	list, err := s.List(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "choose", list[1].Node)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_DeleteAndClear(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock, "checkpoints")

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM checkpoints WHERE id = $1")).
		WithArgs("run-1-0001").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM checkpoints WHERE run_id = $1")).
		WithArgs("run-1").
		WillReturnError(errors.New("connection reset"))

	require.NoError(t, s.Delete(context.Background(), "run-1-0001"))
	err = s.Clear(context.Background(), "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_InitSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock, "runs")
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS runs")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

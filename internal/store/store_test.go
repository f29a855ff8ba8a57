package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
)

var (
	messageColumns = []string{"run_id", "kind", "position", "message"}
	runColumns     = []string{"run_id", "workflow", "session_id", "state", "success", "payload", "abort_reason", "started_at", "finished_at"}
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing().WillReturnError(nil)
	store, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return store, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	store, mockPool := newMockStore(t)

	mockPool.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mockPool.ExpectExec(`CREATE TABLE IF NOT EXISTS run_messages`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mockPool.ExpectExec(`CREATE INDEX IF NOT EXISTS runs_workflow_started_idx`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPersistReport(t *testing.T) {
	ctx := context.Background()
	started := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)

	t.Run("should persist a report with messages", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		report := schemas.RunReport{
			RunID:      "run-1",
			Workflow:   "tiktok_post",
			SessionID:  "session-1",
			State:      schemas.RunCompleted,
			Success:    true,
			Warnings:   []string{"copyright check warning"},
			Errors:     []string{"dismiss draft: no popup"},
			Payload:    map[string]interface{}{"url": "https://www.tiktok.com/tiktokstudio/content"},
			StartedAt:  started,
			FinishedAt: finished,
		}

		mockPool.ExpectBegin()
		mockPool.ExpectExec(`INSERT INTO runs`).
			WithArgs("run-1", "tiktok_post", "session-1", "completed", true,
				[]byte(`{"url":"https://www.tiktok.com/tiktokstudio/content"}`), "", started, finished).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(regexp.QuoteMeta(deleteMessagesSQL)).
			WithArgs("run-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"run_messages"}, messageColumns).WillReturnResult(2)
		mockPool.ExpectCommit()

		require.NoError(t, store.PersistReport(ctx, report))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should skip the copy when there are no messages", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		report := schemas.RunReport{
			RunID:       "run-2",
			Workflow:    "threads_post",
			State:       schemas.RunAborted,
			AbortReason: `step "post": timed out`,
			StartedAt:   started,
			FinishedAt:  finished,
		}

		mockPool.ExpectBegin()
		mockPool.ExpectExec(`INSERT INTO runs`).
			WithArgs("run-2", "threads_post", "", "aborted", false, []byte("{}"), `step "post": timed out`, started, finished).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(regexp.QuoteMeta(deleteMessagesSQL)).
			WithArgs("run-2").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCommit()

		require.NoError(t, store.PersistReport(ctx, report))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should handle transaction begin failure", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		beginErr := errors.New("cannot begin tx")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		err := store.PersistReport(ctx, schemas.RunReport{RunID: "run-3"})
		require.Error(t, err)
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback if copying messages fails", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		copyErr := errors.New("copy from failed")
		mockPool.ExpectBegin()
		mockPool.ExpectExec(`INSERT INTO runs`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(regexp.QuoteMeta(deleteMessagesSQL)).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"run_messages"}, messageColumns).WillReturnError(copyErr)
		mockPool.ExpectRollback()

		err := store.PersistReport(ctx, schemas.RunReport{RunID: "run-4", Warnings: []string{"w"}})
		require.Error(t, err)
		assert.ErrorIs(t, err, copyErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should reject an unencodable payload before touching the database", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		err := store.PersistReport(ctx, schemas.RunReport{RunID: "run-5", Payload: map[string]interface{}{"bad": make(chan int)}})
		require.Error(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	store, mockPool := newMockStore(t)
	t1 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	rows := pgxmock.NewRows(runColumns).
		AddRow("run-2", "tiktok_post", "s-2", "aborted", false, []byte("{}"), `step "upload": timed out`, t2, t2.Add(time.Minute)).
		AddRow("run-1", "tiktok_post", "s-1", "completed", true, []byte(`{"url":"https://example.com/v/1"}`), "", t1, t1.Add(time.Minute))
	mockPool.ExpectQuery(`FROM runs\s+WHERE \(\$1 = ''`).
		WithArgs("tiktok_post", 5).
		WillReturnRows(rows)

	messages := pgxmock.NewRows([]string{"run_id", "kind", "message"}).
		AddRow("run-1", "error", "dismiss draft: no popup").
		AddRow("run-1", "warning", "copyright check warning").
		AddRow("run-9", "warning", "stray")
	mockPool.ExpectQuery(`FROM run_messages`).
		WithArgs([]string{"run-2", "run-1"}).
		WillReturnRows(messages)

	reports, err := store.ListRuns(ctx, "tiktok_post", 5)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "run-2", reports[0].RunID)
	assert.Equal(t, schemas.RunAborted, reports[0].State)
	assert.Nil(t, reports[0].Payload)
	assert.Empty(t, reports[0].Warnings)

	assert.Equal(t, "run-1", reports[1].RunID)
	assert.True(t, reports[1].Success)
	assert.Equal(t, "https://example.com/v/1", reports[1].Payload["url"])
	assert.Equal(t, []string{"copyright check warning"}, reports[1].Warnings)
	assert.Equal(t, []string{"dismiss draft: no popup"}, reports[1].Errors)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGetRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should return the run", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

		mockPool.ExpectQuery(`FROM runs\s+WHERE run_id = \$1`).
			WithArgs("run-1").
			WillReturnRows(pgxmock.NewRows(runColumns).
				AddRow("run-1", "douyin_user", "s-1", "completed", true, []byte(`{"videos":[]}`), "", now, now))
		mockPool.ExpectQuery(`FROM run_messages`).
			WithArgs([]string{"run-1"}).
			WillReturnRows(pgxmock.NewRows([]string{"run_id", "kind", "message"}))

		report, err := store.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, "douyin_user", report.Workflow)
		assert.Equal(t, []interface{}{}, report.Payload["videos"])
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report unknown runs", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		mockPool.ExpectQuery(`FROM runs\s+WHERE run_id = \$1`).
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows(runColumns))

		_, err := store.GetRun(ctx, "missing")
		assert.ErrorIs(t, err, ErrRunNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

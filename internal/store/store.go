package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
)

// ErrRunNotFound is returned by GetRun for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close()
}

const (
	messageWarning = "warning"
	messageError   = "error"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS runs (
        run_id       TEXT PRIMARY KEY,
        workflow     TEXT NOT NULL,
        session_id   TEXT NOT NULL DEFAULT '',
        state        TEXT NOT NULL,
        success      BOOLEAN NOT NULL,
        payload      JSONB NOT NULL DEFAULT '{}',
        abort_reason TEXT NOT NULL DEFAULT '',
        started_at   TIMESTAMPTZ NOT NULL,
        finished_at  TIMESTAMPTZ NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS run_messages (
        run_id   TEXT NOT NULL REFERENCES runs (run_id) ON DELETE CASCADE,
        kind     TEXT NOT NULL,
        position INT NOT NULL,
        message  TEXT NOT NULL,
        PRIMARY KEY (run_id, kind, position)
    )`,
	`CREATE INDEX IF NOT EXISTS runs_workflow_started_idx ON runs (workflow, started_at DESC)`,
}

const upsertRunSQL = `
        INSERT INTO runs (run_id, workflow, session_id, state, success, payload, abort_reason, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (run_id) DO UPDATE SET
            state = EXCLUDED.state,
            success = EXCLUDED.success,
            payload = EXCLUDED.payload,
            abort_reason = EXCLUDED.abort_reason,
            finished_at = EXCLUDED.finished_at;
    `

const deleteMessagesSQL = `DELETE FROM run_messages WHERE run_id = $1;`

const selectRunsSQL = `
        SELECT run_id, workflow, session_id, state, success, payload, abort_reason, started_at, finished_at
        FROM runs
        WHERE ($1 = '' OR workflow = $1)
        ORDER BY started_at DESC
        LIMIT $2;
    `

const selectRunSQL = `
        SELECT run_id, workflow, session_id, state, success, payload, abort_reason, started_at, finished_at
        FROM runs
        WHERE run_id = $1;
    `

const selectMessagesSQL = `
        SELECT run_id, kind, message
        FROM run_messages
        WHERE run_id = ANY($1)
        ORDER BY run_id, kind, position;
    `

// Store keeps the history of workflow runs in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pgx pool for url, creates the tables if needed and returns the store.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create database pool: %v", schemas.ErrConnection, err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", schemas.ErrConnection, err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the run tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// PersistReport stores a run report and its messages in one transaction.
// Persisting the same run again replaces its outcome.
func (s *Store) PersistReport(ctx context.Context, report schemas.RunReport) error {
	payload, err := marshalPayload(report.Payload)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, upsertRunSQL,
		report.RunID, report.Workflow, report.SessionID,
		string(report.State), report.Success, payload, report.AbortReason,
		report.StartedAt, report.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", report.RunID, err)
	}
	if _, err := tx.Exec(ctx, deleteMessagesSQL, report.RunID); err != nil {
		return fmt.Errorf("failed to clear messages for run %s: %w", report.RunID, err)
	}
	if err := s.persistMessages(ctx, tx, report); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Persisted run report", zap.String("run_id", report.RunID), zap.String("state", string(report.State)))
	return nil
}

func (s *Store) persistMessages(ctx context.Context, tx pgx.Tx, report schemas.RunReport) error {
	rows := make([][]interface{}, 0, len(report.Warnings)+len(report.Errors))
	for i, w := range report.Warnings {
		rows = append(rows, []interface{}{report.RunID, messageWarning, i, w})
	}
	for i, e := range report.Errors {
		rows = append(rows, []interface{}{report.RunID, messageError, i, e})
	}
	if len(rows) == 0 {
		return nil
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"run_messages"},
		[]string{"run_id", "kind", "position", "message"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy run messages: %w", err)
	}
	if int(copyCount) != len(rows) {
		return fmt.Errorf("mismatch in copied messages count: expected %d, got %d", len(rows), copyCount)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. An empty workflow matches all.
func (s *Store) ListRuns(ctx context.Context, workflow string, limit int) ([]schemas.RunReport, error) {
	if limit <= 0 {
		limit = 20
	}
	reports, err := s.queryRuns(ctx, selectRunsSQL, workflow, limit)
	if err != nil {
		return nil, err
	}
	if err := s.attachMessages(ctx, reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// GetRun returns a single run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (schemas.RunReport, error) {
	reports, err := s.queryRuns(ctx, selectRunSQL, runID)
	if err != nil {
		return schemas.RunReport{}, err
	}
	if len(reports) == 0 {
		return schemas.RunReport{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err := s.attachMessages(ctx, reports); err != nil {
		return schemas.RunReport{}, err
	}
	return reports[0], nil
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...interface{}) ([]schemas.RunReport, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var reports []schemas.RunReport
	for rows.Next() {
		var r schemas.RunReport
		var state string
		var payload []byte
		err := rows.Scan(
			&r.RunID, &r.Workflow, &r.SessionID, &state, &r.Success,
			&payload, &r.AbortReason, &r.StartedAt, &r.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.State = schemas.RunState(state)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &r.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode payload of run %s: %w", r.RunID, err)
			}
			if len(r.Payload) == 0 {
				r.Payload = nil
			}
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return reports, nil
}

func (s *Store) attachMessages(ctx context.Context, reports []schemas.RunReport) error {
	if len(reports) == 0 {
		return nil
	}
	ids := make([]string, len(reports))
	index := make(map[string]int, len(reports))
	for i, r := range reports {
		ids[i] = r.RunID
		index[r.RunID] = i
	}

	rows, err := s.pool.Query(ctx, selectMessagesSQL, ids)
	if err != nil {
		return fmt.Errorf("failed to query run messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var runID, kind, message string
		if err := rows.Scan(&runID, &kind, &message); err != nil {
			return fmt.Errorf("failed to scan message row: %w", err)
		}
		i, ok := index[runID]
		if !ok {
			continue
		}
		switch kind {
		case messageWarning:
			reports[i].Warnings = append(reports[i].Warnings, message)
		case messageError:
			reports[i].Errors = append(reports[i].Errors, message)
		}
	}
	return rows.Err()
}

func marshalPayload(payload map[string]interface{}) ([]byte, error) {
	if len(payload) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return b, nil
}

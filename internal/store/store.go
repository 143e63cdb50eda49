// Package store provides the local SQLite record store for tasksync.
//
// The database runs embedded (ncruces/go-sqlite3, no cgo) with WAL mode
// so the CLI can read while the sync daemon writes. The store owns the
// tasks table plus a small sync_state key/value table that persists the
// replication cursor across restarts.
//
// The sync engine never manages schema beyond InitSchema; it issues
// parameterized statements through the helpers here, and the coordinator
// applies feed batches inside a single Transaction.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dwestbrook/tasksync/internal/task"
	"github.com/dwestbrook/tasksync/internal/types"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection with tasksync-specific helpers.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the database doesn't exist it is created; call InitSchema before
// first use. The caller MUST call Close when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return s, nil
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist. Idempotent.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		completed INTEGER NOT NULL DEFAULT 0,
		due_at TEXT,
		created_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT ''
	);

	-- Replication state (feed cursor, last sync timestamp)
	CREATE TABLE IF NOT EXISTS sync_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed);
	CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_at);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Transaction runs fn inside a single database transaction. A non-nil
// error from fn rolls the transaction back and is returned wrapped in a
// StorageError; otherwise the transaction commits.
func (s *Store) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return &types.StorageError{Op: "begin", Err: err}
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return &types.StorageError{Op: "rollback", Err: rbErr}
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return &types.StorageError{Op: "commit", Err: err}
	}

	return nil
}

// Execute runs a single parameterized statement outside a transaction and
// returns the number of affected rows.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &types.StorageError{Op: "exec", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &types.StorageError{Op: "rows-affected", Err: err}
	}
	return n, nil
}

// UpsertTask inserts or wholesale-replaces a task row.
func (s *Store) UpsertTask(ctx context.Context, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		return UpsertTx(ctx, tx, t.ID, t.Fields())
	})
}

// GetTask fetches one task by id. Returns sql.ErrNoRows when absent.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, title, description, completed, due_at, created_at, updated_at
		 FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasks returns all tasks ordered by creation time.
func (s *Store) ListTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, title, description, completed, due_at, created_at, updated_at
		 FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, &types.StorageError{Op: "query", Err: err}
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Op: "scan", Err: err}
	}
	return tasks, nil
}

// TaskCount returns the number of task rows.
func (s *Store) TaskCount(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&count); err != nil {
		return 0, &types.StorageError{Op: "count", Err: err}
	}
	return count, nil
}

// GetSyncState reads a sync_state value. A missing key returns "".
func (s *Store) GetSyncState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		"SELECT value FROM sync_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", &types.StorageError{Op: "get-state", Err: err}
	}
	return value, nil
}

// SetSyncState writes a sync_state value, replacing any previous one.
func (s *Store) SetSyncState(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO sync_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return &types.StorageError{Op: "set-state", Err: err}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t         task.Task
		completed int
		dueAt     sql.NullString
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &completed, &dueAt, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, &types.StorageError{Op: "scan", Err: err}
	}

	t.Completed = completed != 0
	if dueAt.Valid && dueAt.String != "" {
		if ts, err := time.Parse(time.RFC3339Nano, dueAt.String); err == nil {
			t.DueAt = &ts
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		t.UpdatedAt = ts
	}
	return &t, nil
}

// UpsertTx inserts or wholesale-replaces the task row identified by id
// from a field map keyed by JSON name. Used for feed inserts, where the
// remote copy of the record replaces the local one entirely.
func UpsertTx(ctx context.Context, tx *sql.Tx, id string, value map[string]any) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, completed, due_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			completed = excluded.completed,
			due_at = excluded.due_at,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		id,
		stringField(value, "title"),
		stringField(value, "description"),
		boolField(value, "completed"),
		nullableField(value, "due_at"),
		stringField(value, "created_at"),
		stringField(value, "updated_at"),
	)
	if err != nil {
		return &types.StorageError{Op: "upsert", Err: err}
	}
	return nil
}

// UpdateTx builds a sparse UPDATE touching only the known columns present
// in fields. Returns the number of affected rows; (0, nil) when fields
// carries no known column, which callers treat as a no-op.
func UpdateTx(ctx context.Context, tx *sql.Tx, id string, fields map[string]any) (int64, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		if task.KnownColumn(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return 0, nil
	}
	sort.Strings(names)

	query := "UPDATE tasks SET "
	args := make([]any, 0, len(names)+1)
	for i, name := range names {
		if i > 0 {
			query += ", "
		}
		query += name + " = ?"
		args = append(args, normalizeValue(name, fields[name]))
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &types.StorageError{Op: "update", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &types.StorageError{Op: "rows-affected", Err: err}
	}
	return n, nil
}

// DeleteTx deletes the task row identified by id. Zero affected rows is
// not an error; the record may already be absent.
func DeleteTx(ctx context.Context, tx *sql.Tx, id string) (int64, error) {
	res, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return 0, &types.StorageError{Op: "delete", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &types.StorageError{Op: "rows-affected", Err: err}
	}
	return n, nil
}

func stringField(value map[string]any, name string) string {
	if v, ok := value[name]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func boolField(value map[string]any, name string) int {
	switch v := value[name].(type) {
	case bool:
		if v {
			return 1
		}
	case float64:
		// JSON numbers decode as float64
		if v != 0 {
			return 1
		}
	case int:
		if v != 0 {
			return 1
		}
	}
	return 0
}

func nullableField(value map[string]any, name string) any {
	if v, ok := value[name]; ok && v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return nil
}

func normalizeValue(name string, v any) any {
	switch name {
	case "completed":
		return boolField(map[string]any{name: v}, name)
	case "due_at":
		return nullableField(map[string]any{name: v}, name)
	default:
		if v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
}

// Package store provides the embedded libSQL/SQLite database holding the
// remote todo records.
//
// The database runs in embedded mode with WAL enabled for concurrent reads.
// It is the durable side of the editor-to-database synchronization loop:
// the reconciler fetches records by identifier, inserts records for todos
// it has never seen, and applies partial updates for todos that changed.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/noteflow/noteflow/internal/schema"
)

// DB wraps the SQLite connection with todo-specific operations.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the given path.
//
// The parent directory is created if needed. WAL mode, a 5 second busy
// timeout and foreign keys are enabled. The caller must Close() when done.
func Open(path string) (*DB, error) {
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

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return db, nil
}

// OpenMemory opens an in-memory database, used by tests and one-shot runs.
func OpenMemory() (*DB, error) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// A single connection keeps all statements on the same memory database.
	conn.SetMaxOpenConns(1)
	return &DB{conn: conn, path: ":memory:"}, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if db.path != ":memory:" {
		if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
		}
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchema creates the todos table and its indexes. Idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS todos (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		project_id TEXT,
		assigned_to TEXT,
		due_date TEXT,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_todos_assigned ON todos(assigned_to);
	CREATE INDEX IF NOT EXISTS idx_todos_project ON todos(project_id);
	CREATE INDEX IF NOT EXISTS idx_todos_completed ON todos(completed);
	CREATE INDEX IF NOT EXISTS idx_todos_due ON todos(due_date);
	`

	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// GetTodo retrieves a record by identifier.
// Returns schema.ErrNotFound when no record exists; this is the distinguished
// non-fatal condition that triggers the reconciler's create path.
func (db *DB) GetTodo(ctx context.Context, id string) (*schema.TodoRecord, error) {
	query := `
	SELECT id, content, completed, project_id, assigned_to, due_date,
	       created_by, created_at, updated_at
	FROM todos
	WHERE id = ?
	`

	rec, err := scanTodo(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("todo %s: %w", id, schema.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get todo %s: %w", id, err)
	}
	return rec, nil
}

// InsertTodo creates a new record. Fails if a record with the same
// identifier already exists; the reconciler only calls this after a
// not-found fetch.
func (db *DB) InsertTodo(ctx context.Context, rec *schema.TodoRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid todo: %w", err)
	}

	query := `
	INSERT INTO todos (
		id, content, completed, project_id, assigned_to, due_date,
		created_by, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.ExecContext(ctx, query,
		rec.ID,
		rec.Content,
		boolToInt(rec.Completed),
		stringToNull(rec.ProjectID),
		stringToNull(rec.AssignedTo),
		timeToNullString(rec.DueDate),
		rec.CreatedBy,
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert todo %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateTodo applies a partial update to an existing record. Only the
// non-nil fields of upd are written, plus updated_at, which is always set.
// Returns schema.ErrNotFound if no record matches the identifier.
func (db *DB) UpdateTodo(ctx context.Context, id string, upd schema.TodoUpdate) error {
	if upd.UpdatedAt.IsZero() {
		upd.UpdatedAt = time.Now()
	}

	sets := []string{"updated_at = ?"}
	args := []interface{}{upd.UpdatedAt.Format(time.RFC3339)}

	if upd.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *upd.Content)
	}
	if upd.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, boolToInt(*upd.Completed))
	}
	if upd.ProjectID != nil {
		sets = append(sets, "project_id = ?")
		args = append(args, stringToNull(*upd.ProjectID))
	}
	if upd.AssignedTo != nil {
		sets = append(sets, "assigned_to = ?")
		args = append(args, stringToNull(*upd.AssignedTo))
	}
	if upd.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, upd.DueDate.Format(time.RFC3339))
	} else if upd.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	}

	query := "UPDATE todos SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update todo %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("todo %s: %w", id, schema.ErrNotFound)
	}
	return nil
}

// DeleteTodo removes a record. Idempotent: deleting a missing record is nil.
func (db *DB) DeleteTodo(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM todos WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete todo %s: %w", id, err)
	}
	return nil
}

// ListFilter configures the ListTodos query.
type ListFilter struct {
	// ProjectID filters by project (empty = all projects).
	ProjectID string
	// AssignedTo filters by assignee (empty = all assignees).
	AssignedTo string
	// Completed filters by completion state when non-nil.
	Completed *bool
	// DueBefore keeps only todos due strictly before the given time.
	DueBefore *time.Time
	// Limit restricts the number of results (0 = no limit).
	Limit int
	// Offset skips the first N results (for pagination).
	Offset int
}

// ListTodos retrieves records matching the filter, ordered by due date
// (records without a due date last), then creation time.
func (db *DB) ListTodos(ctx context.Context, filter ListFilter) ([]*schema.TodoRecord, error) {
	var conditions []string
	var args []interface{}

	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.AssignedTo != "" {
		conditions = append(conditions, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	if filter.Completed != nil {
		conditions = append(conditions, "completed = ?")
		args = append(args, boolToInt(*filter.Completed))
	}
	if filter.DueBefore != nil {
		conditions = append(conditions, "due_date IS NOT NULL AND due_date < ?")
		args = append(args, filter.DueBefore.Format(time.RFC3339))
	}

	query := `
	SELECT id, content, completed, project_id, assigned_to, due_date,
	       created_by, created_at, updated_at
	FROM todos
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY due_date IS NULL, due_date ASC, created_at ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	var todos []*schema.TodoRecord
	for rows.Next() {
		rec, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating todos: %w", err)
	}
	return todos, nil
}

// CountTodos returns the total number of records.
func (db *DB) CountTodos(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM todos").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count todos: %w", err)
	}
	return count, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTodo(row scanner) (*schema.TodoRecord, error) {
	var rec schema.TodoRecord
	var completed int
	var projectID, assignedTo, dueDate sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&rec.ID,
		&rec.Content,
		&completed,
		&projectID,
		&assignedTo,
		&dueDate,
		&rec.CreatedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Completed = completed != 0
	rec.ProjectID = projectID.String
	rec.AssignedTo = assignedTo.String
	rec.DueDate = nullStringToTime(dueDate)

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		rec.UpdatedAt = t
	}

	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

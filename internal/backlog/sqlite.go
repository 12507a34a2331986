package backlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	// DriverSQLite is the pure-Go modernc.org/sqlite driver.
	DriverSQLite = "sqlite"
	// DriverSQLite3 is the cgo github.com/mattn/go-sqlite3 driver.
	DriverSQLite3 = "sqlite3"
)

// SQLiteStore persists session backlogs in SQLite. Each Update rewrites the
// session's rows inside a single transaction so readers never observe a
// partially replaced list.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a SQLiteStore on an existing connection and runs migrations.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("backlog store migration failed: %w", err)
	}
	return s, nil
}

// OpenSQLite opens a database file with the given driver ("sqlite" or "sqlite3").
// Path ":memory:" is accepted for tests; the pool is pinned to one connection
// so every query sees the same in-memory database.
func OpenSQLite(driver, path string) (*SQLiteStore, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverSQLite3 {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set database pragmas: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	store, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS backlog_tasks (
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			id TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			priority TEXT NOT NULL DEFAULT 'medium',
			created_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (session_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backlog_tasks_session ON backlog_tasks(session_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Get returns the session's tasks in stored order.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) ([]Task, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, status, priority, created_at
		FROM backlog_tasks
		WHERE session_id = ?
		ORDER BY position ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query backlog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []Task{}
	for rows.Next() {
		var (
			t         Task
			status    string
			priority  string
			createdAt int64
		)
		if err := rows.Scan(&t.ID, &t.Content, &status, &priority, &createdAt); err != nil {
			return nil, fmt.Errorf("scan backlog row: %w", err)
		}
		t.Status = Status(status)
		t.Priority = Priority(priority)
		if createdAt > 0 {
			t.CreatedAt = time.Unix(0, createdAt)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backlog rows: %w", err)
	}
	return tasks, nil
}

// Update replaces the session's tasks.
func (s *SQLiteStore) Update(ctx context.Context, sessionID string, tasks []Task) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin backlog update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM backlog_tasks WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear backlog: %w", err)
	}

	for i, t := range tasks {
		var createdAt int64
		if !t.CreatedAt.IsZero() {
			createdAt = t.CreatedAt.UnixNano()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO backlog_tasks (session_id, position, id, content, status, priority, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, sessionID, i, t.ID, t.Content, string(t.Status), string(t.Priority), createdAt)
		if err != nil {
			return fmt.Errorf("insert backlog task %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit backlog update: %w", err)
	}
	return nil
}

// ListSessions returns the IDs of all sessions with at least one task, sorted.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT session_id FROM backlog_tasks ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

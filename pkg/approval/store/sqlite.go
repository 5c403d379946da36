package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"atlasbridge-hq/atlasbridge/pkg/approval"
)

// SQLiteStore persists approval requests in SQLite so the decision record
// survives restarts. Held connections do not: a pending request from a
// previous process only ever resolves by a fresh submit.
type SQLiteStore struct {
	db *sql.DB
}

const approvalSchema = `
CREATE TABLE IF NOT EXISTS approvals (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	tool_name   TEXT NOT NULL,
	tool_input  TEXT,
	tool_use_id TEXT,
	cwd         TEXT,
	session_id  TEXT,
	created_at  TEXT NOT NULL,
	status      TEXT NOT NULL,
	decided_at  TEXT,
	reason      TEXT
);

CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status);
CREATE INDEX IF NOT EXISTS idx_approvals_session ON approvals(session_id);
`

// NewSQLiteStore opens (or creates) an approval database at the given path.
func NewSQLiteStore(path string, busyTimeout time.Duration) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("approval db path cannot be empty")
	}
	if busyTimeout == 0 {
		busyTimeout = 5 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create approval db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open approval database: %w", err)
	}

	// Single writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(approvalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize approval schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save persists a new request.
func (s *SQLiteStore) Save(ctx context.Context, req *approval.Request) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (id, tool_name, tool_input, tool_use_id, cwd, session_id, created_at, status, decided_at, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.ToolName,
		string(req.ToolInput),
		req.ToolUseID,
		req.CWD,
		req.SessionID,
		req.CreatedAt.Format(time.RFC3339Nano),
		string(req.Status),
		decidedAtString(req),
		req.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to save approval request: %w", err)
	}
	return nil
}

// Update persists a status transition.
func (s *SQLiteStore) Update(ctx context.Context, req *approval.Request) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE approvals SET status = ?, decided_at = ?, reason = ? WHERE id = ?`,
		string(req.Status),
		decidedAtString(req),
		req.Reason,
		req.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update approval request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return approval.NewNotFoundError(req.ID)
	}
	return nil
}

// Get returns the request with the given id, or nil when unknown.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*approval.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tool_name, tool_input, tool_use_id, cwd, session_id, created_at, status, decided_at, reason
		FROM approvals WHERE id = ?`, id)

	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load approval request: %w", err)
	}
	return req, nil
}

// List returns requests in creation order, optionally filtered by status.
func (s *SQLiteStore) List(ctx context.Context, status approval.Status) ([]*approval.Request, error) {
	query := `
		SELECT id, tool_name, tool_input, tool_use_id, cwd, session_id, created_at, status, decided_at, reason
		FROM approvals`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval requests: %w", err)
	}
	defer rows.Close()

	var out []*approval.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*approval.Request, error) {
	var (
		req       approval.Request
		toolInput string
		createdAt string
		decidedAt sql.NullString
		reason    sql.NullString
	)
	err := row.Scan(
		&req.ID,
		&req.ToolName,
		&toolInput,
		&req.ToolUseID,
		&req.CWD,
		&req.SessionID,
		&createdAt,
		&req.Status,
		&decidedAt,
		&reason,
	)
	if err != nil {
		return nil, err
	}

	if toolInput != "" {
		req.ToolInput = []byte(toolInput)
	}
	req.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	if decidedAt.Valid && decidedAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, decidedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid decided_at: %w", err)
		}
		req.DecidedAt = &t
	}
	if reason.Valid {
		req.Reason = reason.String
	}
	return &req, nil
}

func decidedAtString(req *approval.Request) string {
	if req.DecidedAt == nil {
		return ""
	}
	return req.DecidedAt.Format(time.RFC3339Nano)
}

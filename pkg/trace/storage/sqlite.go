package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"atlasbridge-hq/atlasbridge/pkg/policy/document"
	"atlasbridge-hq/atlasbridge/pkg/trace"
)

// SQLiteConfig contains configuration for the SQLite trace backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging for better read concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig(path string) *SQLiteConfig {
	return &SQLiteConfig{
		Path:         path,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements trace.Storage using SQLite. Append order is
// preserved by an autoincrementing sequence column.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage creates a SQLite trace backend, initializing the schema
// and enabling WAL mode if configured.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("sqlite trace path cannot be empty")
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "trace.storage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{db: db, config: config, logger: logger}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite trace storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return trace.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return trace.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return trace.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return trace.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return trace.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return trace.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Append persists one decision row.
func (s *SQLiteStorage) Append(ctx context.Context, d *trace.Decision) error {
	query := `
		INSERT INTO decisions (
			id, timestamp, session_id, prompt_id, prompt_type,
			matched_rule_id, action_type, action_value, confidence,
			autonomy_mode, explanation, policy_hash, idempotency_key,
			prev_hash, hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var matchedRuleID interface{}
	if d.MatchedRuleID != nil {
		matchedRuleID = *d.MatchedRuleID
	}

	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Timestamp.UTC().Format(time.RFC3339Nano), d.SessionID, d.PromptID, string(d.PromptType),
		matchedRuleID, string(d.ActionType), d.ActionValue, string(d.Confidence),
		string(d.AutonomyMode), d.Explanation, d.PolicyHash, d.IdempotencyKey,
		d.PrevHash, d.Hash,
	)
	if err != nil {
		return trace.NewStorageError("sqlite", "append", err)
	}
	return nil
}

// List returns decisions in append order, optionally filtered by session id.
func (s *SQLiteStorage) List(ctx context.Context, sessionID string) ([]*trace.Decision, error) {
	query := "SELECT " + decisionColumns + " FROM decisions"
	var args []interface{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "list", err)
	}
	defer rows.Close()

	out := []*trace.Decision{}
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, trace.NewStorageError("sqlite", "scan", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, trace.NewStorageError("sqlite", "list", err)
	}
	return out, nil
}

// Count returns the number of stored decisions.
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decisions").Scan(&count); err != nil {
		return 0, trace.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Last returns the most recently appended decision, or nil when empty.
func (s *SQLiteStorage) Last(ctx context.Context) (*trace.Decision, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+decisionColumns+" FROM decisions ORDER BY seq DESC LIMIT 1")
	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "last", err)
	}
	return d, nil
}

// FindByIdempotencyKey returns the decision stored under the given key, or
// nil when none exists.
func (s *SQLiteStorage) FindByIdempotencyKey(ctx context.Context, key string) (*trace.Decision, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+decisionColumns+" FROM decisions WHERE idempotency_key = ? ORDER BY seq ASC LIMIT 1", key)
	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "find_by_idempotency_key", err)
	}
	return d, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return trace.NewStorageError("sqlite", "close", err)
	}
	return nil
}

const decisionColumns = `id, timestamp, session_id, prompt_id, prompt_type,
	matched_rule_id, action_type, action_value, confidence, autonomy_mode,
	explanation, policy_hash, idempotency_key, prev_hash, hash`

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDecision(row scanner) (*trace.Decision, error) {
	var d trace.Decision
	var timestamp string
	var matchedRuleID sql.NullString
	var promptType, actionType, confidence, autonomyMode string

	err := row.Scan(
		&d.ID, &timestamp, &d.SessionID, &d.PromptID, &promptType,
		&matchedRuleID, &actionType, &d.ActionValue, &confidence, &autonomyMode,
		&d.Explanation, &d.PolicyHash, &d.IdempotencyKey, &d.PrevHash, &d.Hash,
	)
	if err != nil {
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", timestamp, err)
	}
	d.Timestamp = ts

	if matchedRuleID.Valid {
		id := matchedRuleID.String
		d.MatchedRuleID = &id
	}

	d.PromptType = document.PromptType(promptType)
	d.ActionType = document.ActionType(actionType)
	d.Confidence = document.Confidence(confidence)
	d.AutonomyMode = document.AutonomyMode(autonomyMode)

	return &d, nil
}

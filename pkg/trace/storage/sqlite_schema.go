package storage

// SchemaVersion is the current trace database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the trace database schema.
const Schema = `
-- Decision trace table. Append order is preserved by rowid.
CREATE TABLE IF NOT EXISTS decisions (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    timestamp TIMESTAMP NOT NULL,
    session_id TEXT NOT NULL,
    prompt_id TEXT NOT NULL,
    prompt_type TEXT NOT NULL,
    matched_rule_id TEXT,
    action_type TEXT NOT NULL,
    action_value TEXT,
    confidence TEXT NOT NULL,
    autonomy_mode TEXT NOT NULL,
    explanation TEXT NOT NULL,
    policy_hash TEXT NOT NULL,
    idempotency_key TEXT NOT NULL,
    prev_hash TEXT NOT NULL,
    hash TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_session ON decisions(session_id);
CREATE INDEX IF NOT EXISTS idx_decisions_idempotency ON decisions(idempotency_key);

-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);
`

// InsertSchemaVersion records the schema version (idempotent).
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?);`

// GetSchemaVersion reads the recorded schema version.
const GetSchemaVersion = `SELECT version FROM schema_version LIMIT 1;`

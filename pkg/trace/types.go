package trace

import (
	"context"
	"time"

	"atlasbridge-hq/atlasbridge/pkg/policy/document"
)

// Decision is the immutable record of one prompt's evaluated outcome.
// Once appended to the trace a decision is never modified; correcting a
// wrong decision requires a new prompt and a new decision.
type Decision struct {
	// ID is a UUID assigned at dispatch time.
	ID string `json:"id"`

	// Timestamp is when the decision was produced.
	Timestamp time.Time `json:"timestamp"`

	// SessionID and PromptID identify the prompt that was evaluated.
	SessionID string `json:"session_id"`
	PromptID  string `json:"prompt_id"`

	// PromptType is the classified kind of the evaluated prompt.
	PromptType document.PromptType `json:"prompt_type"`

	// MatchedRuleID is the id of the rule that matched, or nil when the
	// default path was taken.
	MatchedRuleID *string `json:"matched_rule_id"`

	// ActionType and ActionValue describe the resolved action.
	ActionType  document.ActionType `json:"action_type"`
	ActionValue string              `json:"action_value,omitempty"`

	// Confidence is the prompt's classification confidence.
	Confidence document.Confidence `json:"confidence"`

	// AutonomyMode is the mode of the policy the decision was evaluated
	// under. Mode enforcement happens at the engine level; the evaluator
	// records the mode so downstream consumers can reconstruct behavior.
	AutonomyMode document.AutonomyMode `json:"autonomy_mode"`

	// Explanation is a human-readable account of how the decision was made.
	Explanation string `json:"explanation"`

	// PolicyHash identifies the exact policy content the decision was
	// evaluated against.
	PolicyHash string `json:"policy_hash"`

	// IdempotencyKey deduplicates retried evaluations of the same prompt.
	IdempotencyKey string `json:"idempotency_key"`

	// PrevHash is the hash of the preceding trace entry ("" for the first
	// entry of a chain). Hash is this entry's own hash; see ComputeHash.
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash,omitempty"`
}

// IntegrityStatus summarizes the outcome of a chain verification.
type IntegrityStatus string

const (
	// StatusOK means every entry's hash and linkage verified.
	StatusOK IntegrityStatus = "ok"

	// StatusInvalid means at least one entry failed verification; the chain
	// is untrustworthy from the first bad entry onward.
	StatusInvalid IntegrityStatus = "invalid"
)

// ComponentStatus reports the verification result of one trace component.
type ComponentStatus struct {
	Component string          `json:"component"`
	Status    IntegrityStatus `json:"status"`
	Hash      string          `json:"hash"`
}

// IntegrityReport is the derived (never persisted) result of walking the
// trace from genesis and recomputing every hash.
type IntegrityReport struct {
	OverallStatus     IntegrityStatus   `json:"overall_status"`
	HashChainValid    bool              `json:"hash_chain_valid"`
	TotalTraceEntries int64             `json:"total_trace_entries"`
	TraceHashSummary  string            `json:"trace_hash_summary"`
	Components        []ComponentStatus `json:"components"`
	VerifiedAt        time.Time         `json:"verified_at"`
}

// Storage is a backend for persisted decision records. Implementations must
// be safe for concurrent use; chain ordering and hashing are the Log's
// responsibility, not the backend's.
type Storage interface {
	// Append persists a fully hashed decision record.
	Append(ctx context.Context, d *Decision) error

	// List returns decisions in append order, optionally filtered by
	// session id ("" returns all).
	List(ctx context.Context, sessionID string) ([]*Decision, error)

	// Count returns the number of persisted decisions.
	Count(ctx context.Context) (int64, error)

	// Last returns the most recently appended decision, or nil when the
	// trace is empty.
	Last(ctx context.Context) (*Decision, error)

	// FindByIdempotencyKey returns the decision recorded under the given
	// dedup key, or nil when none exists.
	FindByIdempotencyKey(ctx context.Context, key string) (*Decision, error)

	// Close releases backend resources.
	Close() error
}

// Rotator is implemented by backends that archive the active trace segment
// when it grows past a size limit. Rotation starts a fresh hash chain.
type Rotator interface {
	// MaybeRotate archives the active segment if it exceeds the backend's
	// size limit and reports whether rotation happened.
	MaybeRotate() (bool, error)
}

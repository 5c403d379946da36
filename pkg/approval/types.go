package approval

import (
	"context"
	"encoding/json"
	"time"
)

// Status is the lifecycle state of an approval request.
type Status string

const (
	StatusPending Status = "pending"
	StatusAllowed Status = "allowed"
	StatusDenied  Status = "denied"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	return s == StatusAllowed || s == StatusDenied
}

// Request is one tool-permission request awaiting a decision.
type Request struct {
	// ID is the correlation id handed back to the submitting caller.
	ID string `json:"id"`

	// ToolName is the tool asking for permission.
	ToolName string `json:"tool_name"`

	// ToolInput is the tool's proposed input, carried opaquely.
	ToolInput json.RawMessage `json:"tool_input,omitempty"`

	// ToolUseID is the caller's own identifier for this tool use.
	ToolUseID string `json:"tool_use_id,omitempty"`

	// CWD is the working directory the tool would run in.
	CWD string `json:"cwd,omitempty"`

	// SessionID groups requests from one tool session.
	SessionID string `json:"session_id,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	Status    Status     `json:"status"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`

	// Reason explains a terminal status, e.g. the timeout message.
	Reason string `json:"reason,omitempty"`
}

// Resolution is the payload the held caller receives.
type Resolution struct {
	// PermissionDecision is "allow" or "deny".
	PermissionDecision string `json:"permission_decision"`

	// UpdatedInput optionally replaces the tool input on allow.
	UpdatedInput json.RawMessage `json:"updated_input,omitempty"`

	// Reason explains the decision when one was given.
	Reason string `json:"reason,omitempty"`
}

// Notification is a best-effort observer event. Observers must tolerate
// missed or out-of-order delivery and poll authoritative state instead.
type Notification struct {
	Type      string `json:"type"` // "pending" or "decided"
	RequestID string `json:"request_id"`
	Status    Status `json:"status"`
}

// Store persists approval requests. The correlator's in-memory waiter map
// is authoritative for resolution; the store is the queryable record.
type Store interface {
	// Save persists a new request.
	Save(ctx context.Context, req *Request) error

	// Update persists a status transition.
	Update(ctx context.Context, req *Request) error

	// Get returns the request with the given id, or nil when unknown.
	Get(ctx context.Context, id string) (*Request, error)

	// List returns requests in creation order, optionally filtered by
	// status ("" means all).
	List(ctx context.Context, status Status) ([]*Request, error)

	// Close releases backend resources.
	Close() error
}

// PermissionSink receives always-allow rules a human attaches to an allow
// decision. Persistence is best-effort; a sink failure never rolls back the
// decision.
type PermissionSink interface {
	AddAlwaysAllowRule(ctx context.Context, rule string) error
}

package approval

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"atlasbridge-hq/atlasbridge/pkg/telemetry/metrics"
)

// DefaultTimeout is how long a submitted request stays pending before it is
// resolved to denied.
const DefaultTimeout = 120 * time.Second

// TimeoutReason is the reason attached to a timeout denial.
const TimeoutReason = "Timed out waiting for human decision"

// Decision values accepted by Decide.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// SubmitInput is the inbound webhook payload.
type SubmitInput struct {
	ToolName  string          `json:"tool_name"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	CWD       string          `json:"cwd,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
}

// Correlator matches held submit callers with the decide call (or timeout)
// that resolves them. The pending-waiter map supports an atomic take, so
// exactly one of the decide-path and the timeout-path ever answers a held
// caller.
type Correlator struct {
	store   Store
	sink    PermissionSink
	metrics *metrics.Metrics
	timeout time.Duration
	logger  *slog.Logger

	waiters sync.Map // id -> *waiter

	subMu   sync.RWMutex
	subs    map[int]chan Notification
	nextSub int
}

type waiter struct {
	ch    chan Resolution
	timer *time.Timer
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithTimeout overrides the pending timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Correlator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPermissionSink attaches a sink for always-allow rules.
func WithPermissionSink(sink PermissionSink) Option {
	return func(c *Correlator) {
		c.sink = sink
	}
}

// WithMetrics attaches approval metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Correlator) {
		c.metrics = m
	}
}

// NewCorrelator creates a correlator over the given store.
func NewCorrelator(store Store, opts ...Option) *Correlator {
	c := &Correlator{
		store:   store,
		timeout: DefaultTimeout,
		logger:  slog.Default().With("component", "approval.correlator"),
		subs:    make(map[int]chan Notification),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit registers a new pending request and returns it together with the
// channel the eventual resolution arrives on. The channel receives exactly
// one value, from either a decide call or the timeout.
func (c *Correlator) Submit(ctx context.Context, in *SubmitInput) (*Request, <-chan Resolution, error) {
	req := &Request{
		ID:        uuid.NewString(),
		ToolName:  in.ToolName,
		ToolInput: in.ToolInput,
		ToolUseID: in.ToolUseID,
		CWD:       in.CWD,
		SessionID: in.SessionID,
		CreatedAt: time.Now().UTC(),
		Status:    StatusPending,
	}

	if err := c.store.Save(ctx, req); err != nil {
		return nil, nil, err
	}

	w := &waiter{ch: make(chan Resolution, 1)}
	c.waiters.Store(req.ID, w)
	w.timer = time.AfterFunc(c.timeout, func() {
		c.expire(req.ID)
	})

	c.metrics.ApprovalOpened()
	c.notify(Notification{Type: "pending", RequestID: req.ID, Status: StatusPending})
	c.logger.Info("approval request submitted",
		"approval_id", req.ID,
		"tool_name", req.ToolName,
		"session_id", req.SessionID,
		"timeout", c.timeout,
	)

	return req, w.ch, nil
}

// Decide resolves a pending request. Exactly one Decide call (or the
// timeout) succeeds per id; every other caller gets AlreadyDecidedError,
// and an id that was never submitted gets NotFoundError.
func (c *Correlator) Decide(ctx context.Context, id, decision string, updatedInput json.RawMessage, alwaysAllowRule, reason string) error {
	if decision != DecisionAllow && decision != DecisionDeny {
		return &InvalidDecisionError{Decision: decision}
	}

	v, ok := c.waiters.LoadAndDelete(id)
	if !ok {
		req, err := c.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if req == nil {
			return NewNotFoundError(id)
		}
		return NewAlreadyDecidedError(id, req.Status)
	}
	w := v.(*waiter)
	w.timer.Stop()

	status := StatusDenied
	outcome := "denied"
	if decision == DecisionAllow {
		status = StatusAllowed
		outcome = "allowed"
	}

	if err := c.transition(ctx, id, status, reason); err != nil {
		c.logger.Error("failed to persist approval transition", "approval_id", id, "error", err)
	}

	if decision == DecisionAllow && alwaysAllowRule != "" && c.sink != nil {
		// Best effort: a sink failure never rolls back the decision.
		if err := c.sink.AddAlwaysAllowRule(ctx, alwaysAllowRule); err != nil {
			c.logger.Warn("failed to persist always-allow rule",
				"approval_id", id,
				"rule", alwaysAllowRule,
				"error", err,
			)
		}
	}

	w.ch <- Resolution{
		PermissionDecision: decision,
		UpdatedInput:       updatedInput,
		Reason:             reason,
	}

	c.metrics.ApprovalResolved(outcome)
	c.notify(Notification{Type: "decided", RequestID: id, Status: status})
	c.logger.Info("approval request decided", "approval_id", id, "decision", decision)

	return nil
}

// expire is the timeout path: resolve to denied unless a decide call got
// the waiter first.
func (c *Correlator) expire(id string) {
	v, ok := c.waiters.LoadAndDelete(id)
	if !ok {
		return
	}
	w := v.(*waiter)

	ctx := context.Background()
	if err := c.transition(ctx, id, StatusDenied, TimeoutReason); err != nil {
		c.logger.Error("failed to persist approval timeout", "approval_id", id, "error", err)
	}

	w.ch <- Resolution{
		PermissionDecision: DecisionDeny,
		Reason:             TimeoutReason,
	}

	c.metrics.ApprovalResolved("timeout")
	c.notify(Notification{Type: "decided", RequestID: id, Status: StatusDenied})
	c.logger.Info("approval request timed out", "approval_id", id)
}

func (c *Correlator) transition(ctx context.Context, id string, status Status, reason string) error {
	req, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if req == nil {
		return NewNotFoundError(id)
	}

	now := time.Now().UTC()
	req.Status = status
	req.DecidedAt = &now
	req.Reason = reason
	return c.store.Update(ctx, req)
}

// Get returns the stored request for the given id, or nil when unknown.
func (c *Correlator) Get(ctx context.Context, id string) (*Request, error) {
	return c.store.Get(ctx, id)
}

// List returns stored requests in creation order, optionally filtered by
// status.
func (c *Correlator) List(ctx context.Context, status Status) ([]*Request, error) {
	return c.store.List(ctx, status)
}

// Subscribe registers a best-effort notification observer. The returned
// cancel function must be called to release the subscription. Slow
// observers miss notifications rather than blocking resolution.
func (c *Correlator) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, 16)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
	return ch, cancel
}

func (c *Correlator) notify(n Notification) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, ch := range c.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// Close stops every pending timer. Held callers are not answered; use only
// on shutdown.
func (c *Correlator) Close() error {
	c.waiters.Range(func(key, value any) bool {
		if w, ok := value.(*waiter); ok {
			w.timer.Stop()
		}
		c.waiters.Delete(key)
		return true
	})
	return c.store.Close()
}

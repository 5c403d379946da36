package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"atlasbridge-hq/atlasbridge/pkg/policy/store"
	"atlasbridge-hq/atlasbridge/pkg/telemetry/metrics"
	"atlasbridge-hq/atlasbridge/pkg/trace"
)

// Engine ties the policy store, matcher, dispatcher, and trace together
// behind a single Evaluate call.
type Engine struct {
	store      *store.Store
	matcher    *Matcher
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates an engine. metrics may be nil.
func New(policyStore *store.Store, log *trace.Log, m *metrics.Metrics) *Engine {
	return &Engine{
		store:      policyStore,
		matcher:    NewMatcher(),
		dispatcher: NewDispatcher(log),
		metrics:    m,
		logger:     slog.Default().With("component", "policy.engine"),
	}
}

// Evaluate runs one prompt through the active policy and records the
// decision. Missing session and prompt ids are assigned. The snapshot is
// captured once, so an activation mid-evaluation has no effect on this
// call.
func (e *Engine) Evaluate(ctx context.Context, pc *PromptContext) (*trace.Decision, error) {
	policy := e.store.Active()
	if policy == nil {
		return nil, &store.NoActivePolicyError{}
	}

	if pc.SessionID == "" {
		pc.SessionID = uuid.NewString()
	}
	if pc.PromptID == "" {
		pc.PromptID = uuid.NewString()
	}

	start := time.Now()
	match := e.matcher.Match(policy, pc)
	decision, err := e.dispatcher.Dispatch(ctx, policy, match, pc)
	if err != nil {
		return nil, err
	}

	ruleID := ""
	if decision.MatchedRuleID != nil {
		ruleID = *decision.MatchedRuleID
	}
	e.metrics.RecordDecision(ruleID, string(decision.ActionType), time.Since(start))
	if !decision.Timestamp.Before(start) {
		// A replayed decision predates this evaluation; only fresh
		// appends count.
		e.metrics.RecordTraceAppend()
	}

	e.logger.Info("prompt evaluated",
		"prompt_id", pc.PromptID,
		"session_id", pc.SessionID,
		"prompt_type", pc.PromptType,
		"matched_rule_id", ruleID,
		"action_type", decision.ActionType,
	)

	return decision, nil
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"atlasbridge-hq/atlasbridge/pkg/policy/document"
	"atlasbridge-hq/atlasbridge/pkg/policy/store"
	"atlasbridge-hq/atlasbridge/pkg/trace"
)

// Dispatcher turns a match result into exactly one recorded Decision.
// Retried evaluations of the same prompt are deduplicated by idempotency
// key and return the already-recorded decision.
type Dispatcher struct {
	log    *trace.Log
	logger *slog.Logger

	// autoReplies counts auto_reply decisions per session and rule so
	// max_auto_replies caps can be enforced.
	mu          sync.Mutex
	autoReplies map[string]int
}

// NewDispatcher creates a dispatcher recording into the given trace log.
func NewDispatcher(log *trace.Log) *Dispatcher {
	return &Dispatcher{
		log:         log,
		logger:      slog.Default().With("component", "policy.dispatcher"),
		autoReplies: make(map[string]int),
	}
}

// Dispatch resolves the action for a prompt and appends the Decision to the
// trace before returning it. On an idempotency hit the existing decision is
// returned and nothing is appended.
func (d *Dispatcher) Dispatch(ctx context.Context, policy *store.ActivePolicy, match MatchResult, pc *PromptContext) (*trace.Decision, error) {
	key := trace.IdempotencyKey(policy.Hash, pc.PromptID, pc.SessionID)

	actionType, action, matchedRule, explanation := d.resolve(policy, match, pc)
	actionType, explanation = d.applyAutonomyMode(policy.Document.AutonomyMode, actionType, matchedRule, explanation)
	actionType, explanation = d.applyAutoReplyBudget(actionType, matchedRule, pc, explanation)

	decision := &trace.Decision{
		ID:             uuid.NewString(),
		SessionID:      pc.SessionID,
		PromptID:       pc.PromptID,
		PromptType:     pc.PromptType,
		ActionType:     actionType,
		Confidence:     pc.Confidence,
		AutonomyMode:   policy.Document.AutonomyMode,
		Explanation:    explanation,
		PolicyHash:     policy.Hash,
		IdempotencyKey: key,
	}
	if matchedRule != nil {
		id := matchedRule.ID
		decision.MatchedRuleID = &id
		if actionType == matchedRule.Action.Type {
			decision.ActionValue = action.Value
		}
	}

	// Lookup and append share the trace writer lock, so a retry racing the
	// original evaluation can never record a second entry for one prompt.
	recorded, replayed, err := d.log.AppendIdempotent(ctx, key, decision)
	if err != nil {
		return nil, err
	}
	if replayed {
		d.logger.Debug("idempotent replay, returning recorded decision",
			"prompt_id", pc.PromptID,
			"decision_id", recorded.ID,
		)
		return recorded, nil
	}

	if actionType == document.ActionAutoReply && matchedRule != nil && matchedRule.MaxAutoReplies > 0 {
		d.mu.Lock()
		d.autoReplies[budgetKey(pc.SessionID, matchedRule.ID)]++
		d.mu.Unlock()
	}

	return recorded, nil
}

// resolve picks the action from the matched rule or the policy defaults,
// applying the low-confidence fallback.
func (d *Dispatcher) resolve(policy *store.ActivePolicy, match MatchResult, pc *PromptContext) (document.ActionType, document.Action, *document.Rule, string) {
	defaults := policy.Document.Defaults

	if match.Rule != nil {
		rule := match.Rule
		if pc.Confidence == document.ConfidenceLow && rule.Match.MinConfidence.AtLeast(document.ConfidenceMedium) {
			actionType := defaults.LowConfidenceAction()
			return actionType, document.Action{Type: actionType}, rule,
				fmt.Sprintf("rule %q requires confidence, prompt confidence is low, falling back to low_confidence default %s", rule.ID, actionType)
		}
		return rule.Action.Type, rule.Action, rule, fmt.Sprintf("matched rule %q", rule.ID)
	}

	if pc.Confidence == document.ConfidenceLow && match.ConfidenceBlocked != nil {
		actionType := defaults.LowConfidenceAction()
		return actionType, document.Action{Type: actionType}, nil,
			fmt.Sprintf("rule %q blocked by low confidence, applying low_confidence default %s", match.ConfidenceBlocked.ID, actionType)
	}

	actionType := defaults.NoMatchAction()
	return actionType, document.Action{Type: actionType}, nil,
		fmt.Sprintf("no rule matched, applying no_match default %s", actionType)
}

// applyAutonomyMode escalates automatic replies the mode does not permit.
// off escalates every auto_reply; assist permits auto_reply only for an
// explicit rule match.
func (d *Dispatcher) applyAutonomyMode(mode document.AutonomyMode, actionType document.ActionType, matchedRule *document.Rule, explanation string) (document.ActionType, string) {
	if actionType != document.ActionAutoReply {
		return actionType, explanation
	}

	switch mode {
	case document.AutonomyOff:
		return document.ActionRequireHuman, explanation + "; autonomy mode off, escalating to human"
	case document.AutonomyAssist:
		if matchedRule == nil {
			return document.ActionRequireHuman, explanation + "; assist mode permits auto-reply only on explicit rule match"
		}
	}
	return actionType, explanation
}

// applyAutoReplyBudget escalates once a rule's max_auto_replies cap for the
// session is spent.
func (d *Dispatcher) applyAutoReplyBudget(actionType document.ActionType, matchedRule *document.Rule, pc *PromptContext, explanation string) (document.ActionType, string) {
	if actionType != document.ActionAutoReply || matchedRule == nil || matchedRule.MaxAutoReplies <= 0 {
		return actionType, explanation
	}

	d.mu.Lock()
	used := d.autoReplies[budgetKey(pc.SessionID, matchedRule.ID)]
	d.mu.Unlock()

	if used >= matchedRule.MaxAutoReplies {
		return document.ActionRequireHuman,
			explanation + fmt.Sprintf("; auto-reply limit of %d reached for rule %q in this session", matchedRule.MaxAutoReplies, matchedRule.ID)
	}
	return actionType, explanation
}

func budgetKey(sessionID, ruleID string) string {
	return sessionID + "\x00" + ruleID
}

package engine

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"atlasbridge-hq/atlasbridge/pkg/policy/document"
	"atlasbridge-hq/atlasbridge/pkg/policy/store"
)

// RegexMatchBudget bounds a single regex evaluation. A pattern that does
// not finish within the budget is treated as a non-match.
const RegexMatchBudget = 100 * time.Millisecond

// MatchResult reports the outcome of a first-match pass over the rule
// sequence.
type MatchResult struct {
	// Rule is the first rule whose predicates were all satisfied, or nil.
	Rule *document.Rule

	// ConfidenceBlocked is set when no rule matched but an earlier rule
	// failed only its min_confidence predicate against a low-confidence
	// prompt. The dispatcher uses it to pick the low_confidence default.
	ConfidenceBlocked *document.Rule
}

// Matcher performs pure first-match evaluation. It holds no mutable state
// and is safe for concurrent use against the same snapshot.
type Matcher struct {
	logger *slog.Logger
}

// NewMatcher creates a matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		logger: slog.Default().With("component", "policy.matcher"),
	}
}

// Match iterates the snapshot's rule sequence in order and returns the
// first rule satisfying every present predicate. An empty match always
// succeeds.
func (m *Matcher) Match(policy *store.ActivePolicy, ctx *PromptContext) MatchResult {
	result := MatchResult{}

	for _, rule := range policy.Rules() {
		satisfied, blockedOnConfidence := m.ruleMatches(policy, rule, ctx)
		if satisfied {
			result.Rule = rule
			return result
		}
		if blockedOnConfidence && result.ConfidenceBlocked == nil {
			result.ConfidenceBlocked = rule
		}
	}
	return result
}

// ruleMatches evaluates one rule's predicates as an AND. The second return
// is true when min_confidence was the only failing predicate.
func (m *Matcher) ruleMatches(policy *store.ActivePolicy, rule *document.Rule, ctx *PromptContext) (bool, bool) {
	match := rule.Match

	if match.ToolID != "" && match.ToolID != ctx.ToolID {
		return false, false
	}

	if len(match.PromptTypes) > 0 && !match.HasPromptType(ctx.PromptType) {
		return false, false
	}

	if match.Contains != "" {
		if match.ContainsIsRegex {
			if !m.regexMatch(policy.Regex(rule.ID), rule.ID, ctx.PromptText) {
				return false, false
			}
		} else if !strings.Contains(strings.ToLower(ctx.PromptText), strings.ToLower(match.Contains)) {
			return false, false
		}
	}

	if match.RepoPrefix != "" && !strings.HasPrefix(ctx.RepoPath, match.RepoPrefix) {
		return false, false
	}

	if match.MinConfidence != "" && !ctx.Confidence.AtLeast(match.MinConfidence) {
		return false, true
	}

	return true, false
}

// regexMatch runs a pre-compiled pattern under the match budget. A nil
// pattern (the rule's pattern never compiled) or a timeout counts as a
// non-match; evaluation is never aborted by a bad pattern.
func (m *Matcher) regexMatch(re *regexp.Regexp, ruleID, text string) bool {
	if re == nil {
		m.logger.Warn("rule has no compiled pattern, treating as non-match", "rule_id", ruleID)
		return false
	}

	done := make(chan bool, 1)
	go func() {
		done <- re.MatchString(text)
	}()

	select {
	case matched := <-done:
		return matched
	case <-time.After(RegexMatchBudget):
		m.logger.Warn("regex match exceeded budget, treating as non-match",
			"rule_id", ruleID,
			"budget_ms", RegexMatchBudget.Milliseconds(),
		)
		return false
	}
}

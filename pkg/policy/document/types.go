package document

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// PromptType classifies the kind of interactive prompt a monitored tool
// emitted.
type PromptType string

const (
	PromptYesNo          PromptType = "yes_no"
	PromptConfirmEnter   PromptType = "confirm_enter"
	PromptMultipleChoice PromptType = "multiple_choice"
	PromptFreeText       PromptType = "free_text"
	PromptToolUse        PromptType = "tool_use"
)

// Valid returns true if the prompt type is one of the known values.
func (p PromptType) Valid() bool {
	switch p {
	case PromptYesNo, PromptConfirmEnter, PromptMultipleChoice, PromptFreeText, PromptToolUse:
		return true
	}
	return false
}

// Confidence is the detector's confidence in its classification of a prompt.
// Confidence values are totally ordered: low < medium < high.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Rank returns the position of the confidence value in the low < medium < high
// ordering. Unknown values rank below low.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceLow:
		return 0
	case ConfidenceMedium:
		return 1
	case ConfidenceHigh:
		return 2
	}
	return -1
}

// AtLeast returns true if c meets or exceeds the given threshold.
func (c Confidence) AtLeast(threshold Confidence) bool {
	return c.Rank() >= threshold.Rank()
}

// Valid returns true if the confidence is one of the known values.
func (c Confidence) Valid() bool {
	return c.Rank() >= 0
}

// ActionType is the kind of action a rule (or a policy default) resolves to.
type ActionType string

const (
	ActionAutoReply    ActionType = "auto_reply"
	ActionRequireHuman ActionType = "require_human"
	ActionDeny         ActionType = "deny"
	ActionNotifyOnly   ActionType = "notify_only"
)

// Valid returns true if the action type is one of the known values.
func (a ActionType) Valid() bool {
	switch a {
	case ActionAutoReply, ActionRequireHuman, ActionDeny, ActionNotifyOnly:
		return true
	}
	return false
}

// AutonomyMode is the policy-wide ceiling on automatic behavior.
type AutonomyMode string

const (
	// AutonomyOff escalates every prompt to a human regardless of rules.
	AutonomyOff AutonomyMode = "off"

	// AutonomyAssist auto-handles only prompts with an explicit rule match.
	AutonomyAssist AutonomyMode = "assist"

	// AutonomyFull auto-handles everything the policy permits.
	AutonomyFull AutonomyMode = "full"
)

// Valid returns true if the autonomy mode is one of the known values.
func (m AutonomyMode) Valid() bool {
	switch m {
	case AutonomyOff, AutonomyAssist, AutonomyFull:
		return true
	}
	return false
}

// Document is the root of a persisted policy: an ordered rule sequence plus
// policy-wide defaults. Documents are replaced atomically on activation and
// never mutated in place.
type Document struct {
	// PolicyVersion identifies the document format revision. Required.
	PolicyVersion string `yaml:"policy_version" json:"policy_version"`

	// Name is a human-readable policy name.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// AutonomyMode is the policy-wide autonomy ceiling. Required.
	AutonomyMode AutonomyMode `yaml:"autonomy_mode" json:"autonomy_mode"`

	// Rules is the ordered evaluation sequence. Rule ids are unique within
	// a document.
	Rules []*Rule `yaml:"rules" json:"rules"`

	// Defaults determine the outcome when no rule matches or when confidence
	// is too low for the matched rule.
	Defaults Defaults `yaml:"defaults,omitempty" json:"defaults"`
}

// Defaults are the fallback actions applied when rule evaluation does not
// produce an actionable outcome. Zero values resolve to require_human, the
// safest option.
type Defaults struct {
	// NoMatch is applied when no rule matches the prompt.
	NoMatch ActionType `yaml:"no_match,omitempty" json:"no_match,omitempty"`

	// LowConfidence is applied when a low-confidence prompt would otherwise
	// trigger a rule requiring at least medium confidence.
	LowConfidence ActionType `yaml:"low_confidence,omitempty" json:"low_confidence,omitempty"`
}

// NoMatchAction returns the no-match default, falling back to require_human
// when unset.
func (d Defaults) NoMatchAction() ActionType {
	if d.NoMatch == "" {
		return ActionRequireHuman
	}
	return d.NoMatch
}

// LowConfidenceAction returns the low-confidence default, falling back to
// require_human when unset.
func (d Defaults) LowConfidenceAction() ActionType {
	if d.LowConfidence == "" {
		return ActionRequireHuman
	}
	return d.LowConfidence
}

// Rule is a single match-predicate/action pairing within a policy. Rules are
// evaluated in document order; the first rule whose match criteria are fully
// satisfied determines the outcome.
type Rule struct {
	// ID uniquely identifies the rule within its document.
	ID string `yaml:"id" json:"id"`

	// Description is optional human-readable context.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Match holds the predicates that must all be satisfied for the rule to
	// apply. An empty match matches unconditionally (a "catch-all").
	Match MatchCriteria `yaml:"match" json:"match"`

	// Action is taken when the rule matches.
	Action Action `yaml:"action" json:"action"`

	// Enabled controls whether the rule participates in evaluation.
	// A nil value means enabled (the default).
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// MaxAutoReplies caps consecutive automatic replies from this rule.
	// Zero means unlimited.
	MaxAutoReplies int `yaml:"max_auto_replies,omitempty" json:"max_auto_replies,omitempty"`
}

// IsEnabled returns true unless the rule was explicitly disabled.
func (r *Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// IsCatchAll returns true if the rule has an empty match, i.e. it matches
// every prompt.
func (r *Rule) IsCatchAll() bool {
	return r.Match.IsEmpty()
}

// MatchCriteria is the AND of all present predicates. Absent predicates are
// not evaluated.
type MatchCriteria struct {
	// ToolID restricts the rule to prompts from one tool.
	ToolID string `yaml:"tool_id,omitempty" json:"tool_id,omitempty"`

	// PromptTypes restricts the rule to a set of prompt types.
	PromptTypes []PromptType `yaml:"prompt_type,omitempty" json:"prompt_type,omitempty"`

	// Contains requires the prompt text to contain this string
	// (case-insensitive), or to match it as a regular expression when
	// ContainsIsRegex is set.
	Contains string `yaml:"contains,omitempty" json:"contains,omitempty"`

	// ContainsIsRegex interprets Contains as a regular expression.
	ContainsIsRegex bool `yaml:"contains_is_regex,omitempty" json:"contains_is_regex,omitempty"`

	// MinConfidence requires the prompt's confidence to meet this threshold.
	MinConfidence Confidence `yaml:"min_confidence,omitempty" json:"min_confidence,omitempty"`

	// RepoPrefix requires the prompt's repository path to start with this
	// prefix.
	RepoPrefix string `yaml:"repo_prefix,omitempty" json:"repo_prefix,omitempty"`
}

// IsEmpty returns true if no predicates are present.
func (m MatchCriteria) IsEmpty() bool {
	return m.ToolID == "" &&
		len(m.PromptTypes) == 0 &&
		m.Contains == "" &&
		m.MinConfidence == "" &&
		m.RepoPrefix == ""
}

// HasPromptType returns true if the given prompt type is in the criteria's
// prompt type set.
func (m MatchCriteria) HasPromptType(pt PromptType) bool {
	for _, t := range m.PromptTypes {
		if t == pt {
			return true
		}
	}
	return false
}

// Action describes what to do when a rule matches.
type Action struct {
	// Type is the action kind.
	Type ActionType `yaml:"type" json:"type"`

	// Value is the reply text for auto_reply actions.
	Value string `yaml:"value,omitempty" json:"value,omitempty"`

	// Message is shown to the human on escalation.
	Message string `yaml:"message,omitempty" json:"message,omitempty"`

	// Reason documents why the action was chosen.
	Reason string `yaml:"reason,omitempty" json:"reason,omitempty"`

	// Constraints carries opaque action-specific settings.
	Constraints map[string]string `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

// GetRule returns the rule with the given id, or nil if not found.
func (d *Document) GetRule(id string) *Rule {
	for _, rule := range d.Rules {
		if rule.ID == id {
			return rule
		}
	}
	return nil
}

// EnabledRules returns all enabled rules in document order.
func (d *Document) EnabledRules() []*Rule {
	var enabled []*Rule
	for _, rule := range d.Rules {
		if rule.IsEnabled() {
			enabled = append(enabled, rule)
		}
	}
	return enabled
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{
		PolicyVersion: d.PolicyVersion,
		Name:          d.Name,
		AutonomyMode:  d.AutonomyMode,
		Defaults:      d.Defaults,
		Rules:         make([]*Rule, len(d.Rules)),
	}
	for i, rule := range d.Rules {
		out.Rules[i] = rule.Clone()
	}
	return out
}

// Clone returns a deep copy of the rule.
func (r *Rule) Clone() *Rule {
	out := *r
	if r.Enabled != nil {
		enabled := *r.Enabled
		out.Enabled = &enabled
	}
	if len(r.Match.PromptTypes) > 0 {
		out.Match.PromptTypes = append([]PromptType(nil), r.Match.PromptTypes...)
	}
	if r.Action.Constraints != nil {
		out.Action.Constraints = make(map[string]string, len(r.Action.Constraints))
		for k, v := range r.Action.Constraints {
			out.Action.Constraints[k] = v
		}
	}
	return &out
}

// Hash returns the SHA-256 hex digest of the document's canonical JSON form
// (RFC 8785). The hash identifies the exact policy content a decision was
// evaluated against.
func (d *Document) Hash() (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal policy document: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize policy document: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

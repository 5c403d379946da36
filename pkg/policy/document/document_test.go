package document

import (
	"strings"
	"testing"
)

const samplePolicy = `
policy_version: "1"
name: default
autonomy_mode: assist
rules:
  - id: auto-enter
    description: press enter on confirm prompts
    match:
      prompt_type: [confirm_enter]
      min_confidence: medium
    action:
      type: auto_reply
      value: "\n"
  - id: deny-credentials
    match:
      contains: "password|token"
      contains_is_regex: true
    action:
      type: deny
      reason: credential prompts are never auto-answered
  - id: catch-all
    match: {}
    action:
      type: require_human
defaults:
  no_match: require_human
  low_confidence: require_human
`

func TestParse_SamplePolicy(t *testing.T) {
	doc, err := Parse([]byte(samplePolicy))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if doc.PolicyVersion != "1" {
		t.Errorf("PolicyVersion = %q, want %q", doc.PolicyVersion, "1")
	}
	if doc.AutonomyMode != AutonomyAssist {
		t.Errorf("AutonomyMode = %q, want %q", doc.AutonomyMode, AutonomyAssist)
	}
	if len(doc.Rules) != 3 {
		t.Fatalf("len(Rules) = %d, want 3", len(doc.Rules))
	}
	if doc.Rules[0].ID != "auto-enter" || doc.Rules[2].ID != "catch-all" {
		t.Errorf("rule order not preserved: got %q, %q, %q",
			doc.Rules[0].ID, doc.Rules[1].ID, doc.Rules[2].ID)
	}
	if doc.Rules[0].Action.Value != "\n" {
		t.Errorf("auto-enter action value = %q, want newline", doc.Rules[0].Action.Value)
	}
	if !doc.Rules[2].IsCatchAll() {
		t.Error("catch-all rule should report IsCatchAll")
	}
	if doc.Rules[0].IsCatchAll() {
		t.Error("auto-enter should not report IsCatchAll")
	}
}

func TestParse_RoundTripPreservesSemantics(t *testing.T) {
	doc, err := Parse([]byte(samplePolicy))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	out, err := Serialize(doc)
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}

	reparsed, err := Parse(out)
	if err != nil {
		t.Fatalf("re-Parse() error: %v", err)
	}

	if len(reparsed.Rules) != len(doc.Rules) {
		t.Fatalf("round-trip changed rule count: %d != %d", len(reparsed.Rules), len(doc.Rules))
	}
	for i := range doc.Rules {
		if reparsed.Rules[i].ID != doc.Rules[i].ID {
			t.Errorf("rule %d: id %q != %q", i, reparsed.Rules[i].ID, doc.Rules[i].ID)
		}
		if reparsed.Rules[i].Action.Type != doc.Rules[i].Action.Type {
			t.Errorf("rule %d: action type changed", i)
		}
	}

	h1, err := doc.Hash()
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	h2, err := reparsed.Hash()
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	if h1 != h2 {
		t.Errorf("round-trip changed document hash: %s != %s", h1, h2)
	}
}

func TestValidate(t *testing.T) {
	boolPtr := func(b bool) *bool { return &b }

	tests := []struct {
		name    string
		doc     *Document
		wantErr string // substring of the validation error, "" = valid
	}{
		{
			name: "valid minimal",
			doc: &Document{
				PolicyVersion: "1",
				AutonomyMode:  AutonomyFull,
				Rules: []*Rule{
					{ID: "r1", Action: Action{Type: ActionRequireHuman}},
				},
			},
		},
		{
			name:    "missing policy_version",
			doc:     &Document{AutonomyMode: AutonomyOff},
			wantErr: "policy_version is required",
		},
		{
			name:    "missing autonomy_mode",
			doc:     &Document{PolicyVersion: "1"},
			wantErr: "autonomy_mode is required",
		},
		{
			name: "unknown autonomy_mode",
			doc: &Document{
				PolicyVersion: "1",
				AutonomyMode:  "turbo",
			},
			wantErr: `unknown autonomy_mode "turbo"`,
		},
		{
			name: "duplicate rule ids",
			doc: &Document{
				PolicyVersion: "1",
				AutonomyMode:  AutonomyAssist,
				Rules: []*Rule{
					{ID: "dup", Action: Action{Type: ActionDeny}},
					{ID: "dup", Action: Action{Type: ActionDeny}},
				},
			},
			wantErr: "duplicate rule id",
		},
		{
			name: "unknown prompt_type",
			doc: &Document{
				PolicyVersion: "1",
				AutonomyMode:  AutonomyAssist,
				Rules: []*Rule{
					{
						ID:     "r1",
						Match:  MatchCriteria{PromptTypes: []PromptType{"maybe"}},
						Action: Action{Type: ActionDeny},
					},
				},
			},
			wantErr: `unknown prompt_type "maybe"`,
		},
		{
			name: "unknown action type",
			doc: &Document{
				PolicyVersion: "1",
				AutonomyMode:  AutonomyAssist,
				Rules: []*Rule{
					{ID: "r1", Action: Action{Type: "explode"}},
				},
			},
			wantErr: `unknown action.type "explode"`,
		},
		{
			name: "unknown min_confidence",
			doc: &Document{
				PolicyVersion: "1",
				AutonomyMode:  AutonomyAssist,
				Rules: []*Rule{
					{
						ID:     "r1",
						Match:  MatchCriteria{MinConfidence: "certain"},
						Action: Action{Type: ActionDeny},
					},
				},
			},
			wantErr: `unknown min_confidence "certain"`,
		},
		{
			name: "regex too long",
			doc: &Document{
				PolicyVersion: "1",
				AutonomyMode:  AutonomyAssist,
				Rules: []*Rule{
					{
						ID: "r1",
						Match: MatchCriteria{
							Contains:        strings.Repeat("a", MaxRegexLength+1),
							ContainsIsRegex: true,
						},
						Action: Action{Type: ActionDeny},
					},
				},
			},
			wantErr: "regex pattern exceeds",
		},
		{
			name: "regex backreference",
			doc: &Document{
				PolicyVersion: "1",
				AutonomyMode:  AutonomyAssist,
				Rules: []*Rule{
					{
						ID: "r1",
						Match: MatchCriteria{
							Contains:        `(a)\1`,
							ContainsIsRegex: true,
						},
						Action: Action{Type: ActionDeny},
					},
				},
			},
			wantErr: "backreferences are not supported",
		},
		{
			name: "malformed regex",
			doc: &Document{
				PolicyVersion: "1",
				AutonomyMode:  AutonomyAssist,
				Rules: []*Rule{
					{
						ID: "r1",
						Match: MatchCriteria{
							Contains:        "[unclosed",
							ContainsIsRegex: true,
						},
						Action: Action{Type: ActionDeny},
					},
				},
			},
			wantErr: "invalid regex pattern",
		},
		{
			name: "unknown default",
			doc: &Document{
				PolicyVersion: "1",
				AutonomyMode:  AutonomyAssist,
				Defaults:      Defaults{NoMatch: "shrug"},
			},
			wantErr: `unknown defaults.no_match "shrug"`,
		},
		{
			name: "disabled rule is still validated",
			doc: &Document{
				PolicyVersion: "1",
				AutonomyMode:  AutonomyAssist,
				Rules: []*Rule{
					{
						ID:      "r1",
						Enabled: boolPtr(false),
						Action:  Action{Type: "explode"},
					},
				},
			},
			wantErr: `unknown action.type "explode"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.doc)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfidenceOrdering(t *testing.T) {
	if !ConfidenceHigh.AtLeast(ConfidenceMedium) {
		t.Error("high should be at least medium")
	}
	if !ConfidenceMedium.AtLeast(ConfidenceMedium) {
		t.Error("medium should be at least medium")
	}
	if ConfidenceLow.AtLeast(ConfidenceMedium) {
		t.Error("low should not be at least medium")
	}
	if ConfidenceMedium.AtLeast(ConfidenceHigh) {
		t.Error("medium should not be at least high")
	}
}

func TestDefaults_SafeZeroValue(t *testing.T) {
	var d Defaults
	if got := d.NoMatchAction(); got != ActionRequireHuman {
		t.Errorf("NoMatchAction() zero value = %q, want require_human", got)
	}
	if got := d.LowConfidenceAction(); got != ActionRequireHuman {
		t.Errorf("LowConfidenceAction() zero value = %q, want require_human", got)
	}
}

func TestRule_EnabledDefault(t *testing.T) {
	r := &Rule{ID: "r1"}
	if !r.IsEnabled() {
		t.Error("rule with unset enabled flag should be enabled")
	}

	disabled := false
	r.Enabled = &disabled
	if r.IsEnabled() {
		t.Error("explicitly disabled rule should not be enabled")
	}
}

func TestClone_Independence(t *testing.T) {
	doc, err := Parse([]byte(samplePolicy))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	clone := doc.Clone()
	clone.Rules[0].ID = "mutated"
	clone.Rules[0].Match.PromptTypes[0] = PromptFreeText

	if doc.Rules[0].ID != "auto-enter" {
		t.Error("mutating clone changed original rule id")
	}
	if doc.Rules[0].Match.PromptTypes[0] != PromptConfirmEnter {
		t.Error("mutating clone changed original prompt types")
	}
}

func TestDocumentHash_Deterministic(t *testing.T) {
	doc, err := Parse([]byte(samplePolicy))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	h1, err := doc.Hash()
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	h2, err := doc.Hash()
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	if h1 != h2 {
		t.Errorf("Hash() not deterministic: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("Hash() length = %d, want 64 hex chars", len(h1))
	}

	other := doc.Clone()
	other.Rules[0].Action.Value = "y"
	h3, err := other.Hash()
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	if h3 == h1 {
		t.Error("Hash() should change when rule content changes")
	}
}

package export_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"atlasbridge-hq/atlasbridge/pkg/policy/document"
	"atlasbridge-hq/atlasbridge/pkg/trace"
	"atlasbridge-hq/atlasbridge/pkg/trace/export"
)

func exportDecisions() []*trace.Decision {
	ruleID := "auto-enter"
	return []*trace.Decision{
		{
			ID:            "d-001",
			Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			SessionID:     "s-001",
			PromptID:      "p-001",
			PromptType:    document.PromptConfirmEnter,
			MatchedRuleID: &ruleID,
			ActionType:    document.ActionAutoReply,
			ActionValue:   "\n",
			Confidence:    document.ConfidenceHigh,
			AutonomyMode:  document.AutonomyFull,
			Explanation:   `matched rule "auto-enter"`,
			PolicyHash:    "abc",
			PrevHash:      "",
			Hash:          "def",
		},
		{
			ID:           "d-002",
			Timestamp:    time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC),
			SessionID:    "s-001",
			PromptID:     "p-002",
			PromptType:   document.PromptYesNo,
			ActionType:   document.ActionRequireHuman,
			Confidence:   document.ConfidenceLow,
			AutonomyMode: document.AutonomyFull,
			Explanation:  "no rule matched, applying no_match default require_human",
			PolicyHash:   "abc",
			PrevHash:     "def",
			Hash:         "012",
		},
	}
}

func TestJSONExport(t *testing.T) {
	var buf bytes.Buffer
	if err := export.NewJSONExporter(false).Export(context.Background(), exportDecisions(), &buf); err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	var got []*trace.Decision
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].ID != "d-001" || got[0].MatchedRuleID == nil {
		t.Errorf("first decision round-trip mismatch: %+v", got[0])
	}
	if got[1].MatchedRuleID != nil {
		t.Errorf("default-path decision should keep null matched_rule_id")
	}
}

func TestJSONExport_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := export.NewJSONExporter(false).Export(context.Background(), nil, &buf); err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty export = %q, want []", buf.String())
	}
}

func TestCSVExport(t *testing.T) {
	var buf bytes.Buffer
	if err := export.NewCSVExporter(true).Export(context.Background(), exportDecisions(), &buf); err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "id" || rows[0][5] != "matched_rule_id" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][5] != "auto-enter" {
		t.Errorf("matched_rule_id column = %q", rows[1][5])
	}
	if rows[2][5] != "" {
		t.Errorf("default path matched_rule_id should be empty, got %q", rows[2][5])
	}
}

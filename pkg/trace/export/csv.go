package export

import (
	"context"
	"encoding/csv"
	"io"
	"time"

	"atlasbridge-hq/atlasbridge/pkg/trace"
)

// CSVExporter writes decisions as flat CSV rows.
type CSVExporter struct {
	// IncludeHeader writes a header row first.
	IncludeHeader bool
}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

var csvHeader = []string{
	"id",
	"timestamp",
	"session_id",
	"prompt_id",
	"prompt_type",
	"matched_rule_id",
	"action_type",
	"action_value",
	"confidence",
	"autonomy_mode",
	"explanation",
	"policy_hash",
	"prev_hash",
	"hash",
}

// Export writes the decisions to w.
func (e *CSVExporter) Export(ctx context.Context, decisions []*trace.Decision, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return trace.NewStorageError("export", "csv", err)
		}
	}

	for _, d := range decisions {
		if err := writer.Write(decisionRow(d)); err != nil {
			return trace.NewStorageError("export", "csv", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return trace.NewStorageError("export", "csv", err)
	}
	return nil
}

func decisionRow(d *trace.Decision) []string {
	matchedRule := ""
	if d.MatchedRuleID != nil {
		matchedRule = *d.MatchedRuleID
	}
	return []string{
		d.ID,
		d.Timestamp.Format(time.RFC3339Nano),
		d.SessionID,
		d.PromptID,
		string(d.PromptType),
		matchedRule,
		string(d.ActionType),
		d.ActionValue,
		string(d.Confidence),
		string(d.AutonomyMode),
		d.Explanation,
		d.PolicyHash,
		d.PrevHash,
		d.Hash,
	}
}

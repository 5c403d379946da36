package export

import (
	"context"
	"encoding/json"
	"io"

	"atlasbridge-hq/atlasbridge/pkg/trace"
)

// JSONExporter writes decisions as a JSON array.
type JSONExporter struct {
	// Pretty enables indented output.
	Pretty bool
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes the decisions to w.
func (e *JSONExporter) Export(ctx context.Context, decisions []*trace.Decision, w io.Writer) error {
	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if decisions == nil {
		decisions = []*trace.Decision{}
	}
	if err := enc.Encode(decisions); err != nil {
		return trace.NewStorageError("export", "encode", err)
	}
	return nil
}

package handlers

import (
	"net/http"

	"atlasbridge-hq/atlasbridge/pkg/trace"
)

// TraceHandler serves read-only access to the decision trace.
type TraceHandler struct {
	log *trace.Log
}

// NewTraceHandler creates the trace handler.
func NewTraceHandler(log *trace.Log) *TraceHandler {
	return &TraceHandler{log: log}
}

// List handles GET /v1/trace with an optional session_id filter.
func (h *TraceHandler) List(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	entries, err := h.log.List(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read decision trace")
		return
	}
	if entries == nil {
		entries = []*trace.Decision{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// Integrity handles GET /v1/trace/integrity and runs a full chain
// verification on demand.
func (h *TraceHandler) Integrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.log.Verify(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to verify decision trace")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

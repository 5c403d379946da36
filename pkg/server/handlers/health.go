package handlers

import (
	"net/http"
	"time"

	"atlasbridge-hq/atlasbridge/pkg/policy/store"
)

// HealthHandler handles health check requests for liveness probes.
type HealthHandler struct{}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// ServeHTTP implements http.Handler for liveness checks.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// ReadyHandler handles readiness checks. The service is ready once a
// policy document has been activated.
type ReadyHandler struct {
	policies *store.Store
}

// NewReadyHandler creates a new readiness check handler.
func NewReadyHandler(policies *store.Store) *ReadyHandler {
	return &ReadyHandler{policies: policies}
}

// ServeHTTP implements http.Handler for readiness checks.
func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	active := h.policies.Active()

	status := "ready"
	statusCode := http.StatusOK
	if active == nil {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	body := map[string]any{
		"status":    status,
		"timestamp": time.Now().Unix(),
	}
	if active != nil {
		body["policy_hash"] = active.Hash
	}
	writeJSON(w, statusCode, body)
}

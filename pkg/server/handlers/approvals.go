package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"atlasbridge-hq/atlasbridge/pkg/approval"
	"atlasbridge-hq/atlasbridge/pkg/policy/document"
	"atlasbridge-hq/atlasbridge/pkg/policy/engine"
	"atlasbridge-hq/atlasbridge/pkg/policy/store"
)

// PermissionChecker reports whether a tool is on the always-allow list.
type PermissionChecker interface {
	Allows(rule string) bool
}

// ApprovalsHandler serves the approval webhook and decision endpoints.
type ApprovalsHandler struct {
	correlator  *approval.Correlator
	engine      *engine.Engine
	permissions PermissionChecker
	logger      *slog.Logger
}

// NewApprovalsHandler creates the approvals handler. permissions may be nil
// when no always-allow list is configured.
func NewApprovalsHandler(c *approval.Correlator, e *engine.Engine, permissions PermissionChecker) *ApprovalsHandler {
	return &ApprovalsHandler{
		correlator:  c,
		engine:      e,
		permissions: permissions,
		logger:      slog.Default().With("component", "server.approvals"),
	}
}

type submitResponse struct {
	ID                 string          `json:"id,omitempty"`
	DecisionID         string          `json:"decision_id,omitempty"`
	PermissionDecision string          `json:"permission_decision"`
	UpdatedInput       json.RawMessage `json:"updated_input,omitempty"`
	Reason             string          `json:"reason,omitempty"`
}

// Submit handles POST /v1/approvals. The tool use is first evaluated
// against the active policy; only a require_human outcome registers a
// pending request and holds the connection until decide or timeout. This
// is the one route that intentionally holds its caller.
func (h *ApprovalsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var in approval.SubmitInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.ToolName == "" {
		writeError(w, http.StatusBadRequest, "tool_name required")
		return
	}

	if h.permissions != nil && h.permissions.Allows(in.ToolName) {
		writeJSON(w, http.StatusOK, submitResponse{
			PermissionDecision: approval.DecisionAllow,
			Reason:             "tool is on the always-allow list",
		})
		return
	}

	if resp, done := h.evaluateToolUse(w, r, &in); done {
		if resp != nil {
			writeJSON(w, http.StatusOK, *resp)
		}
		return
	}

	req, resolved, err := h.correlator.Submit(r.Context(), &in)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to register approval request")
		return
	}

	select {
	case res := <-resolved:
		writeJSON(w, http.StatusOK, submitResponse{
			ID:                 req.ID,
			PermissionDecision: res.PermissionDecision,
			UpdatedInput:       res.UpdatedInput,
			Reason:             res.Reason,
		})
	case <-r.Context().Done():
		// Caller gave up; the request stays pending until decide or
		// timeout settles the record.
		h.logger.Info("approval caller disconnected", "approval_id", req.ID)
	}
}

// evaluateToolUse runs the tool use through the active policy. It returns
// done=true when the submit call is finished without holding: either a
// response to write or an error already written. A missing policy falls
// through to the hold path; mediation still works before any activation.
func (h *ApprovalsHandler) evaluateToolUse(w http.ResponseWriter, r *http.Request, in *approval.SubmitInput) (*submitResponse, bool) {
	if h.engine == nil {
		return nil, false
	}

	decision, err := h.engine.Evaluate(r.Context(), &engine.PromptContext{
		PromptText: in.ToolName + " " + string(in.ToolInput),
		PromptType: document.PromptToolUse,
		Confidence: document.ConfidenceHigh,
		ToolID:     in.ToolName,
		RepoPath:   in.CWD,
		SessionID:  in.SessionID,
		PromptID:   in.ToolUseID,
	})
	if err != nil {
		var noActive *store.NoActivePolicyError
		if errors.As(err, &noActive) {
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "policy evaluation failed")
		return nil, true
	}

	switch decision.ActionType {
	case document.ActionDeny:
		return &submitResponse{
			DecisionID:         decision.ID,
			PermissionDecision: approval.DecisionDeny,
			Reason:             decision.Explanation,
		}, true
	case document.ActionAutoReply, document.ActionNotifyOnly:
		return &submitResponse{
			DecisionID:         decision.ID,
			PermissionDecision: approval.DecisionAllow,
			Reason:             decision.Explanation,
		}, true
	default:
		return nil, false
	}
}

type decideRequest struct {
	Decision        string          `json:"decision"`
	UpdatedInput    json.RawMessage `json:"updated_input,omitempty"`
	AlwaysAllowRule string          `json:"always_allow_rule,omitempty"`
	Reason          string          `json:"reason,omitempty"`
}

// Decide handles POST /v1/approvals/{id}/decide.
func (h *ApprovalsHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "approval id required")
		return
	}

	var req decideRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.correlator.Decide(r.Context(), id, req.Decision, req.UpdatedInput, req.AlwaysAllowRule, req.Reason)
	if err != nil {
		var notFound *approval.NotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		var already *approval.AlreadyDecidedError
		if errors.As(err, &already) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		var invalid *approval.InvalidDecisionError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// List handles GET /v1/approvals with an optional status filter.
func (h *ApprovalsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := approval.Status(r.URL.Query().Get("status"))
	if status != "" && status != approval.StatusPending && !status.Terminal() {
		writeError(w, http.StatusBadRequest, "unknown status: "+string(status))
		return
	}

	requests, err := h.correlator.List(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list approval requests")
		return
	}
	if requests == nil {
		requests = []*approval.Request{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"approvals": requests,
		"count":     len(requests),
	})
}

// Get handles GET /v1/approvals/{id}.
func (h *ApprovalsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	req, err := h.correlator.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load approval request")
		return
	}
	if req == nil {
		writeError(w, http.StatusNotFound, "approval request not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

package handlers

import (
	"errors"
	"net/http"

	"atlasbridge-hq/atlasbridge/pkg/policy/document"
	"atlasbridge-hq/atlasbridge/pkg/policy/engine"
	"atlasbridge-hq/atlasbridge/pkg/policy/store"
)

// EvaluateHandler serves POST /v1/evaluate for live evaluation and the
// policy-testing UI.
type EvaluateHandler struct {
	engine *engine.Engine
}

// NewEvaluateHandler creates the evaluate handler.
func NewEvaluateHandler(e *engine.Engine) *EvaluateHandler {
	return &EvaluateHandler{engine: e}
}

type evaluateRequest struct {
	PromptText string `json:"prompt_text"`
	PromptType string `json:"prompt_type"`
	Confidence string `json:"confidence"`
	ToolID     string `json:"tool_id,omitempty"`
	RepoPath   string `json:"repo_path,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	PromptID   string `json:"prompt_id,omitempty"`
}

type evaluateResponse struct {
	DecisionID    string  `json:"decision_id"`
	MatchedRuleID *string `json:"matched_rule_id,omitempty"`
	ActionType    string  `json:"action_type"`
	ActionValue   string  `json:"action_value,omitempty"`
	Explanation   string  `json:"explanation"`
}

// ServeHTTP evaluates one prompt against the active policy.
func (h *EvaluateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	promptType := document.PromptType(req.PromptType)
	if !promptType.Valid() {
		writeError(w, http.StatusBadRequest, "unknown prompt_type: "+req.PromptType)
		return
	}
	confidence := document.Confidence(req.Confidence)
	if !confidence.Valid() {
		writeError(w, http.StatusBadRequest, "unknown confidence: "+req.Confidence)
		return
	}

	decision, err := h.engine.Evaluate(r.Context(), &engine.PromptContext{
		PromptText: req.PromptText,
		PromptType: promptType,
		Confidence: confidence,
		ToolID:     req.ToolID,
		RepoPath:   req.RepoPath,
		SessionID:  req.SessionID,
		PromptID:   req.PromptID,
	})
	if err != nil {
		var noActive *store.NoActivePolicyError
		if errors.As(err, &noActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}

	writeJSON(w, http.StatusOK, evaluateResponse{
		DecisionID:    decision.ID,
		MatchedRuleID: decision.MatchedRuleID,
		ActionType:    string(decision.ActionType),
		ActionValue:   decision.ActionValue,
		Explanation:   decision.Explanation,
	})
}

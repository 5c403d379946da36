package handlers

import (
	"errors"
	"net/http"
	"os"
	"time"

	"atlasbridge-hq/atlasbridge/pkg/policy/document"
	"atlasbridge-hq/atlasbridge/pkg/policy/store"
)

// PolicyHandler serves the policy lifecycle endpoints.
type PolicyHandler struct {
	store *store.Store
}

// NewPolicyHandler creates the policy handler.
func NewPolicyHandler(s *store.Store) *PolicyHandler {
	return &PolicyHandler{store: s}
}

type activateRequest struct {
	// Preset names a policy from the preset directory.
	Preset string `json:"preset,omitempty"`

	// Document is a raw YAML policy document.
	Document string `json:"document,omitempty"`
}

type activateResponse struct {
	Name          string `json:"name"`
	PolicyVersion string `json:"policy_version"`
	AutonomyMode  string `json:"autonomy_mode"`
	PolicyHash    string `json:"policy_hash"`
	Rules         int    `json:"rules"`
}

// Activate handles POST /v1/policy/activate. Failure keeps the currently
// active policy untouched.
func (h *PolicyHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		active *store.ActivePolicy
		err    error
	)
	switch {
	case req.Preset != "" && req.Document != "":
		writeError(w, http.StatusBadRequest, "provide either preset or document, not both")
		return
	case req.Preset != "":
		active, err = h.store.ActivatePreset(req.Preset)
	case req.Document != "":
		var doc *document.Document
		doc, err = document.Parse([]byte(req.Document))
		if err == nil {
			active, err = h.store.ActivateDocument(doc)
		}
	default:
		writeError(w, http.StatusBadRequest, "preset or document required")
		return
	}

	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, activateResponse{
		Name:          active.Document.Name,
		PolicyVersion: active.Document.PolicyVersion,
		AutonomyMode:  string(active.Document.AutonomyMode),
		PolicyHash:    active.Hash,
		Rules:         len(active.Document.Rules),
	})
}

type toggleRequest struct {
	RuleID  string `json:"rule_id"`
	Enabled bool   `json:"enabled"`
}

// ToggleRule handles POST /v1/policy/rules/toggle.
func (h *PolicyHandler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RuleID == "" {
		writeError(w, http.StatusBadRequest, "rule_id required")
		return
	}

	if err := h.store.ToggleRule(req.RuleID, req.Enabled); err != nil {
		var notFound *store.RuleNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		var noActive *store.NoActivePolicyError
		if errors.As(err, &noActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type presetsResponse struct {
	Presets []string `json:"presets"`
}

// Presets handles GET /v1/policy/presets: the policy names available for
// activation from the configured preset directory.
func (h *PolicyHandler) Presets(w http.ResponseWriter, r *http.Request) {
	presets, err := h.store.ListPresets()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if presets == nil {
		presets = []string{}
	}
	writeJSON(w, http.StatusOK, presetsResponse{Presets: presets})
}

type policyResponse struct {
	Name          string           `json:"name"`
	PolicyVersion string           `json:"policy_version"`
	AutonomyMode  string           `json:"autonomy_mode"`
	PolicyHash    string           `json:"policy_hash"`
	ActivatedAt   time.Time        `json:"activated_at"`
	Rules         []*document.Rule `json:"rules"`
}

// Get handles GET /v1/policy: the active policy and its evaluation
// sequence.
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	active := h.store.Active()
	if active == nil {
		writeError(w, http.StatusNotFound, "no active policy")
		return
	}

	writeJSON(w, http.StatusOK, policyResponse{
		Name:          active.Document.Name,
		PolicyVersion: active.Document.PolicyVersion,
		AutonomyMode:  string(active.Document.AutonomyMode),
		PolicyHash:    active.Hash,
		ActivatedAt:   active.ActivatedAt,
		Rules:         h.store.Rules(),
	})
}

package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"atlasbridge-hq/atlasbridge/pkg/policy/document"
)

// presetNamePattern restricts preset identifiers to a single path component.
var presetNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Store owns the active policy snapshot and the disabled-rule bookkeeping.
//
// Toggling a rule off removes it from the evaluation sequence but keeps its
// full definition keyed by id; toggling it back on reinserts it immediately
// before the first catch-all rule (or at the end when none exists), with its
// content untouched.
type Store struct {
	mu        sync.RWMutex
	active    *ActivePolicy
	disabled  map[string]*document.Rule
	presetDir string
	logger    *slog.Logger
}

// NewStore creates an empty policy store. presetDir may be empty when named
// presets are not used.
func NewStore(presetDir string) *Store {
	return &Store{
		disabled:  make(map[string]*document.Rule),
		presetDir: presetDir,
		logger:    slog.Default().With("component", "policy.store"),
	}
}

// Load validates and compiles a document into a snapshot without activating
// it. Useful for dry-run validation and for preparing a swap.
func (s *Store) Load(doc *document.Document) (*ActivePolicy, error) {
	return compile(doc)
}

// Activate makes the snapshot the one new evaluations see. The swap is
// atomic: in-flight evaluations keep the snapshot they started with.
// Activation resets toggle bookkeeping from any earlier policy.
func (s *Store) Activate(p *ActivePolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = p
	s.disabled = make(map[string]*document.Rule)

	s.logger.Info("policy activated",
		"policy", p.Document.Name,
		"policy_version", p.Document.PolicyVersion,
		"autonomy_mode", p.Document.AutonomyMode,
		"rules", len(p.Document.Rules),
		"policy_hash", p.Hash,
	)
}

// ActivateDocument validates, compiles, and activates a document in one
// step. On validation failure the previously active policy stays in effect.
func (s *Store) ActivateDocument(doc *document.Document) (*ActivePolicy, error) {
	p, err := compile(doc)
	if err != nil {
		return nil, err
	}
	s.Activate(p)
	return p, nil
}

// ActivatePreset loads a named preset from the preset directory and
// activates it. Names are confined to a single path component.
func (s *Store) ActivatePreset(name string) (*ActivePolicy, error) {
	path, err := s.resolvePreset(name)
	if err != nil {
		return nil, err
	}

	doc, err := document.ParseFile(path)
	if err != nil {
		return nil, NewPresetError(name, "failed to parse", err)
	}
	return s.ActivateDocument(doc)
}

// resolvePreset maps a preset name to a file under the preset directory,
// rejecting anything that could escape it.
func (s *Store) resolvePreset(name string) (string, error) {
	if s.presetDir == "" {
		return "", NewPresetError(name, "no preset directory configured", nil)
	}
	if !presetNamePattern.MatchString(name) || strings.Contains(name, "..") {
		return "", NewPresetError(name, "invalid preset name", nil)
	}

	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(s.presetDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", NewPresetError(name, "not found", os.ErrNotExist)
}

// ListPresets returns the preset names available in the preset directory.
func (s *Store) ListPresets() ([]string, error) {
	if s.presetDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(s.presetDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ext))
	}
	return names, nil
}

// Active returns the current snapshot, or nil before first activation.
func (s *Store) Active() *ActivePolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Rules returns the active evaluation sequence in order. Rules disabled via
// toggle are absent; before first activation the sequence is empty.
func (s *Store) Rules() []*document.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == nil {
		return nil
	}
	return s.active.Rules()
}

// ToggleRule enables or disables a rule by id. Disabling keeps the rule's
// definition so a later enable restores it byte-identical; rule content is
// never modified. Toggling to the state a rule is already in is a no-op.
func (s *Store) ToggleRule(ruleID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return &NoActivePolicyError{}
	}

	if enabled {
		return s.enableRule(ruleID)
	}
	return s.disableRule(ruleID)
}

func (s *Store) disableRule(ruleID string) error {
	if _, ok := s.disabled[ruleID]; ok {
		return nil
	}

	idx := -1
	for i, rule := range s.active.Document.Rules {
		if rule.ID == ruleID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return NewRuleNotFoundError(ruleID)
	}

	doc := s.active.Document.Clone()
	kept := s.disabled
	removed := doc.Rules[idx]
	doc.Rules = append(doc.Rules[:idx], doc.Rules[idx+1:]...)

	next, err := compile(doc)
	if err != nil {
		return err
	}
	s.active = next
	kept[ruleID] = removed

	s.logger.Info("rule disabled", "rule_id", ruleID)
	return nil
}

func (s *Store) enableRule(ruleID string) error {
	rule, ok := s.disabled[ruleID]
	if !ok {
		// Already in the active sequence: enabling is a no-op.
		if s.active.Document.GetRule(ruleID) != nil {
			return nil
		}
		return NewRuleNotFoundError(ruleID)
	}

	doc := s.active.Document.Clone()

	// Reinsert before the first catch-all rule, or append.
	insertAt := len(doc.Rules)
	for i, r := range doc.Rules {
		if r.IsCatchAll() {
			insertAt = i
			break
		}
	}
	doc.Rules = append(doc.Rules, nil)
	copy(doc.Rules[insertAt+1:], doc.Rules[insertAt:])
	doc.Rules[insertAt] = rule

	next, err := compile(doc)
	if err != nil {
		return err
	}
	s.active = next
	delete(s.disabled, ruleID)

	s.logger.Info("rule enabled", "rule_id", ruleID, "position", insertAt)
	return nil
}

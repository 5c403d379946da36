package store

import "fmt"

// RuleNotFoundError indicates a toggle referenced a rule id that exists
// neither in the active sequence nor in the disabled set.
type RuleNotFoundError struct {
	RuleID string
}

func (e *RuleNotFoundError) Error() string {
	return fmt.Sprintf("rule not found: %s", e.RuleID)
}

// NewRuleNotFoundError creates a rule-not-found error.
func NewRuleNotFoundError(ruleID string) *RuleNotFoundError {
	return &RuleNotFoundError{RuleID: ruleID}
}

// PresetError indicates a named preset could not be resolved or loaded.
type PresetError struct {
	Name    string
	Message string
	Cause   error
}

func (e *PresetError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("preset %q: %s: %v", e.Name, e.Message, e.Cause)
	}
	return fmt.Sprintf("preset %q: %s", e.Name, e.Message)
}

func (e *PresetError) Unwrap() error {
	return e.Cause
}

// NewPresetError creates a preset error.
func NewPresetError(name, message string, cause error) *PresetError {
	return &PresetError{Name: name, Message: message, Cause: cause}
}

// NoActivePolicyError indicates an operation required an active policy but
// none has been activated yet.
type NoActivePolicyError struct{}

func (e *NoActivePolicyError) Error() string {
	return "no active policy"
}

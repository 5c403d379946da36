package document

import (
	"fmt"
	"strings"
)

// ValidationError reports one or more structural problems with a policy
// document. A document that fails validation is never activated.
type ValidationError struct {
	PolicyName string
	Errors     []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	name := e.PolicyName
	if name == "" {
		name = "(unnamed)"
	}
	return fmt.Sprintf("policy %s: %d validation error(s): %s",
		name, len(e.Errors), strings.Join(e.Errors, "; "))
}

// ParseError reports a failure to parse a persisted policy document.
type ParseError struct {
	Source string
	Cause  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse policy document %q: %v", e.Source, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

package approval

import "fmt"

// NotFoundError indicates a decide call referenced an unknown request id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("approval request not found: %s", e.ID)
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(id string) *NotFoundError {
	return &NotFoundError{ID: id}
}

// AlreadyDecidedError indicates the request reached a terminal status
// before this decide call.
type AlreadyDecidedError struct {
	ID     string
	Status Status
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("approval request %s already decided: %s", e.ID, e.Status)
}

// NewAlreadyDecidedError creates an already-decided error.
func NewAlreadyDecidedError(id string, status Status) *AlreadyDecidedError {
	return &AlreadyDecidedError{ID: id, Status: status}
}

// InvalidDecisionError indicates a decision value outside {allow, deny}.
type InvalidDecisionError struct {
	Decision string
}

func (e *InvalidDecisionError) Error() string {
	return fmt.Sprintf("invalid decision %q: must be allow or deny", e.Decision)
}

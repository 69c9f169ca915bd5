package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrConversationNotFound is returned when no conversation exists with
	// the requested id.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrStreamActive is returned when a second message arrives for a
	// conversation whose stream is still in flight.
	ErrStreamActive = errors.New("a stream is already active for this conversation")
)

// ValidationError wraps field-specific validation errors.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

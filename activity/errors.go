package activity

import (
	"errors"
	"fmt"
)

// ErrMissingField is matched by every MissingFieldError.
var ErrMissingField = errors.New("missing required field")

// MissingFieldError names the message and field a caller left out.
type MissingFieldError struct {
	Message string
	Field   string
	Index   int // position of the offending lap or sample; -1 when not applicable
}

func (e *MissingFieldError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s %d: missing required field %s", e.Message, e.Index, e.Field)
	}
	return fmt.Sprintf("%s: missing required field %s", e.Message, e.Field)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

func missing(message, field string, index int) error {
	return &MissingFieldError{Message: message, Field: field, Index: index}
}

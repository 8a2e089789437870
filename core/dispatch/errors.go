package dispatch

import (
	"errors"
	"fmt"
)

// ErrPersistence wraps emergency store failures. The realtime fan-out of the
// assign path proceeds even when this error is returned.
var ErrPersistence = errors.New("emergency store unavailable")

// ValidationError reports a missing or malformed request field. It is
// surfaced before any state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

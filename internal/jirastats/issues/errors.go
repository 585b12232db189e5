package issues

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport marks failed remote fetches
	ErrTransport = errors.New("transport error")
	// ErrIntegrity marks results that do not add up, either a merged page
	// count mismatch or an aggregate index that does not cover every issue
	ErrIntegrity = errors.New("data integrity error")
	// ErrValidation marks payloads with an unexpected shape
	ErrValidation = errors.New("validation error")
)

// TransportError wraps a failed search request
type TransportError struct {
	JQL     string
	StartAt int
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("search %q at offset %d failed: %v", e.JQL, e.StartAt, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// IntegrityErrorf formats an error that wraps ErrIntegrity
func IntegrityErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, args...))
}

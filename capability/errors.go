package capability

import (
	"errors"
	"fmt"
	"strings"
)

// Predefined errors for registration and resolution.
var (
	ErrInvalidName        = errors.New("capability: name must not be empty")
	ErrInvalidCandidate   = errors.New("capability: invalid candidate")
	ErrDuplicateCandidate = errors.New("capability: candidate name is already registered")
	ErrTypeMismatch       = errors.New("capability: candidate type does not match capability")
	ErrSealed             = errors.New("capability: registry is sealed")

	// ErrInapplicable is returned by initializers that decline a context.
	// It is an expected outcome and never escapes Resolve.
	ErrInapplicable = errors.New("capability: context not applicable")

	// ErrNotFound reports that no candidate accepted the context.
	ErrNotFound = errors.New("capability: no suitable backend")

	// ErrAmbiguous reports that more than one candidate accepted the context
	// while resolving with WithExclusive.
	ErrAmbiguous = errors.New("capability: more than one backend accepted the context")

	ErrAlreadyClosed = errors.New("capability: instance already closed")
)

// Decline wraps cause so that it matches ErrInapplicable. Initializers use it
// to reject a context they do not support.
func Decline(cause error) error {
	if cause == nil {
		return ErrInapplicable
	}
	return fmt.Errorf("%w: %w", ErrInapplicable, cause)
}

// Declinef is like Decline with a formatted diagnostic.
func Declinef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInapplicable, fmt.Sprintf(format, args...))
}

// InitError is recorded when a candidate accepted the context but failed to
// set itself up.
type InitError struct {
	Candidate string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("capability: candidate %s failed to initialize: %v", e.Candidate, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// NotFoundError carries the probe report of a resolution that found no backend.
type NotFoundError struct {
	Capability Name
	Attempts   []Attempt
}

func (e *NotFoundError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("capability: no suitable backend for %q (no candidates probed)", e.Capability)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.String())
	}
	return fmt.Sprintf("capability: no suitable backend for %q (%s)", e.Capability, strings.Join(parts, "; "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AmbiguousError lists every candidate that accepted the same context.
type AmbiguousError struct {
	Capability Name
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("capability: ambiguous backends for %q: %s", e.Capability, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousError) Is(target error) bool { return target == ErrAmbiguous }

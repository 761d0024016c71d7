// Package errs defines the error kinds from spec.md §7 as sentinel values,
// following the teacher's plain fmt.Errorf("...: %w", err) wrapping idiom
// rather than a status-code or error-struct framework.
package errs

import "errors"

var (
	// ErrInvalidInput marks malformed or missing required fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransientBackend marks a network, 5xx, or timeout failure from an
	// external dependency. Callers decide whether to retry.
	ErrTransientBackend = errors.New("transient backend error")

	// ErrPermanentBackend marks a 4xx failure from an external dependency
	// (auth, quota, schema) that a retry cannot fix.
	ErrPermanentBackend = errors.New("permanent backend error")

	// ErrStructuredGeneration marks a structured output that failed to
	// parse even after the sanitize-and-retry pass.
	ErrStructuredGeneration = errors.New("structured generation failed")

	// ErrNotFound marks a queried memory with no hydrated row.
	ErrNotFound = errors.New("not found")
)

// Is reports whether err wraps target, delegating to errors.Is so callers
// never need to import "errors" just to classify a pipeline error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

package vectorstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for vector store operations.
var (
	// ErrNotInitialized is returned by every operation except Initialize
	// until Initialize has succeeded.
	ErrNotInitialized = errors.New("vector store not initialized")

	// ErrBackendUnavailable indicates connection or collection setup failed.
	ErrBackendUnavailable = errors.New("vector store backend unavailable")

	// ErrInvalidConfig indicates invalid configuration (unknown mode, distance, ...).
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedBackend is returned by the factory for an unknown type name.
	ErrUnsupportedBackend = errors.New("unsupported vector store backend")

	// ErrMissingDependency is returned when a known backend was compiled out.
	ErrMissingDependency = errors.New("missing vector store dependency")

	// ErrBackendError wraps a failure from the underlying backend client.
	ErrBackendError = errors.New("vector store backend error")

	// ErrInvalidAdapter is returned by RegisterAdapter for an unusable registration.
	ErrInvalidAdapter = errors.New("invalid vector store adapter")

	// ErrInvalidFilter indicates a malformed filter expression.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrInvalidArgument indicates an out of range argument such as k < 1.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")
)

// MissingDependencyError reports a backend that is known but not compiled
// into this binary, with a hint on how to get it.
type MissingDependencyError struct {
	Backend string
	Hint    string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("%s: backend %q is not available in this build (%s)", ErrMissingDependency, e.Backend, e.Hint)
}

// Is makes errors.Is(err, ErrMissingDependency) hold.
func (e *MissingDependencyError) Is(target error) bool {
	return target == ErrMissingDependency
}

func backendError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrBackendError, op, err)
}

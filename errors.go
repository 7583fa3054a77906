package metriki

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by registry operations. Callers should match them
// with errors.Is rather than comparing directly, because the registry wraps
// them with per-call context.
var (
	// ErrKindMismatch indicates a get-or-create call asked for a name that is
	// already registered as a different metric kind.
	ErrKindMismatch = errors.New("metric kind mismatch")

	// ErrEmptyName indicates a registry operation was given an empty metric
	// name.
	ErrEmptyName = errors.New("metric name is empty")
)

// KindMismatchError reports the name and the two conflicting kinds of a
// failed get-or-create call. It unwraps to ErrKindMismatch.
type KindMismatchError struct {
	Name       string
	Requested  Kind
	Registered Kind
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("metric %q: requested kind %s, already registered as %s",
		e.Name, e.Requested, e.Registered)
}

func (e *KindMismatchError) Unwrap() error {
	return ErrKindMismatch
}

// IsKindMismatch reports whether err is a kind-mismatch failure from a
// registry get-or-create call.
func IsKindMismatch(err error) bool {
	return errors.Is(err, ErrKindMismatch)
}

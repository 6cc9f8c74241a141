package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable wraps failures to reach or query the backing store.
	ErrStoreUnavailable = errors.New("storage: store unavailable")
	// ErrStoreInconsistency means the (prefix, continuation) uniqueness invariant is broken.
	ErrStoreInconsistency = errors.New("storage: store inconsistency")
)

// InconsistencyError identifies a pair stored more than once, or a row that cannot be decoded.
type InconsistencyError struct {
	Prefix       string
	Continuation string
	Rows         int
	Detail       string
}

func (e *InconsistencyError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("inconsistent row (%q, %q): %s", e.Prefix, e.Continuation, e.Detail)
	}
	return fmt.Sprintf("duplicate row (%q, %q) stored %d times", e.Prefix, e.Continuation, e.Rows)
}

func (e *InconsistencyError) Is(target error) bool {
	return target == ErrStoreInconsistency
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

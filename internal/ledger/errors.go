package ledger

import (
	"errors"
	"fmt"
)

// NotFoundError reports a missing resource. Surfaced to callers as a client
// error, never retried automatically.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// NotFound builds a NotFoundError for a resource name.
func NotFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ErrStaleBalance means an update carried a version that no longer matches
// the stored row. The caller re-reads and retries from scratch; proofs built
// against the stale balance are discarded.
var ErrStaleBalance = errors.New("balance row was updated concurrently")

// ErrAlreadyExists means a create targeted a key that is already present.
var ErrAlreadyExists = errors.New("already exists")

package errors

import "errors"

var (
	// ErrBusy means a live lock already exists for the key.
	ErrBusy = errors.New("lock is held by another owner")

	// ErrTokenMismatch means the presented fencing token no longer matches
	// the live lock; the caller's lease was superseded.
	ErrTokenMismatch = errors.New("fencing token is stale")

	ErrNotFound = errors.New("lock not found")
)

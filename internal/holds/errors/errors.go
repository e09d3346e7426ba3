package errors

import "errors"

var (
	ErrNotFound = errors.New("hold not found")

	ErrInvalidID = errors.New("invalid hold ID format")

	// ErrNotActive means the hold reached a terminal state (expired,
	// converted or released) and can no longer be acted on.
	ErrNotActive = errors.New("hold is not active")

	// ErrActiveHoldExists means the key already carries an active hold.
	ErrActiveHoldExists = errors.New("an active hold already exists for this resource key")
)

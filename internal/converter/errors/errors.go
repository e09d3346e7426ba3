package errors

import "errors"

var (
	// ErrNotFound indicates the booking does not exist.
	ErrNotFound = errors.New("booking not found")
	// ErrBookingExists indicates a confirmed booking already consumes the
	// resource key.
	ErrBookingExists = errors.New("confirmed booking already exists for resource key")
	// ErrNotConfirmed indicates a cancel targeted a booking that is not in
	// the Confirmed state.
	ErrNotConfirmed = errors.New("booking is not confirmed")
)

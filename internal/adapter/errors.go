package adapter

import "errors"

// Domain errors for the adapter package.
var (
	// ErrAlreadyRegistered is returned when registering a profile twice.
	ErrAlreadyRegistered = errors.New("adapter: profile already registered")

	// ErrInvalidState is returned when a lifecycle request does not
	// apply in the adapter's current state.
	ErrInvalidState = errors.New("adapter: invalid state")
)

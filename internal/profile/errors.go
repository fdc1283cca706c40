package profile

import "errors"

// Domain errors for the profile package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, profile.ErrPolicyForbidden) {
//	    // handle forbidden case
//	}
var (
	// ErrNotBonded is returned when a connect request targets a device
	// without a stored bond.
	ErrNotBonded = errors.New("profile: device not bonded")

	// ErrPolicyForbidden is returned when a connect request targets a
	// device whose connection policy forbids this profile.
	ErrPolicyForbidden = errors.New("profile: connection policy forbidden")

	// ErrInvalidTransition is returned when a request does not apply in
	// the connection's current state.
	ErrInvalidTransition = errors.New("profile: invalid transition")

	// ErrNoConnection is returned when an operation references a device
	// with no live connection state machine.
	ErrNoConnection = errors.New("profile: no connection")

	// ErrUnknownProfile is returned when an identifier names no known
	// profile.
	ErrUnknownProfile = errors.New("profile: unknown profile")
)

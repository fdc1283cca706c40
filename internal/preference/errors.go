package preference

import "errors"

// Domain errors for the preference package.
var (
	// ErrAnotherActiveRequest is returned when a request conflicts with
	// an in-flight request for the same group. Requests are rejected,
	// never queued.
	ErrAnotherActiveRequest = errors.New("preference: another active request")

	// ErrNoPendingRequest is returned when an acknowledgement arrives
	// for a group with no request in flight.
	ErrNoPendingRequest = errors.New("preference: no pending request")
)

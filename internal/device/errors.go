package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a device address does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrGroupNotFound is returned when a group ID does not exist.
	ErrGroupNotFound = errors.New("device: group not found")

	// ErrInvalidAddress is returned when an address is empty.
	ErrInvalidAddress = errors.New("device: invalid address")

	// ErrInvalidGroup is returned when a group ID is invalid.
	ErrInvalidGroup = errors.New("device: invalid group id")

	// ErrPreconditionFailed is returned when removing a device that is
	// the sole connected member of an active group.
	ErrPreconditionFailed = errors.New("device: precondition failed")

	// ErrGroupNotConnected is returned when activating a group with no
	// connected members.
	ErrGroupNotConnected = errors.New("device: group not connected")
)

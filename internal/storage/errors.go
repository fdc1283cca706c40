package storage

import "errors"

// Domain errors for the storage package.
var (
	// ErrInvalidAddress is returned when an address is empty.
	ErrInvalidAddress = errors.New("storage: invalid address")

	// ErrInvalidProfile is returned when an identifier names no known
	// profile.
	ErrInvalidProfile = errors.New("storage: invalid profile")
)

package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // first sighting
//	}
var (
	// ErrDeviceNotFound is returned when an identity has no record.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when inserting a handle for an identity already registered.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidResolution is returned when a "WIDTHxHEIGHT" string cannot be parsed.
	ErrInvalidResolution = errors.New("device: invalid resolution")

	// ErrCompanionsAttached is returned when companion sessions are attached twice.
	ErrCompanionsAttached = errors.New("device: companions already attached")

	// ErrHandleClosed is returned when operating on an evicted handle.
	ErrHandleClosed = errors.New("device: handle closed")
)

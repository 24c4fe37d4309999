package adb

import "errors"

// Domain errors for adb operations.
var (
	// ErrCommandFailed is returned when a request to the adb server or a
	// device fails or times out.
	ErrCommandFailed = errors.New("adb: command failed")

	// ErrUnexpectedOutput is returned when adb output cannot be parsed.
	ErrUnexpectedOutput = errors.New("adb: unexpected output")
)

package lifecycle

import "errors"

var (
	// ErrOnlineTimeout is returned when a device does not come online in time.
	ErrOnlineTimeout = errors.New("lifecycle: device did not come online")

	// ErrSync is returned when the master rejects or misses a record push.
	ErrSync = errors.New("lifecycle: master sync failed")

	// ErrSuperseded is returned when a detach cancels a pending attach.
	ErrSuperseded = errors.New("lifecycle: attach superseded by detach")

	// ErrClosed is returned for events submitted after Close.
	ErrClosed = errors.New("lifecycle: dispatcher closed")
)

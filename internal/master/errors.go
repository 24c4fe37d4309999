package master

import "errors"

// ErrRequestFailed is returned when the master rejects a call or cannot
// be reached.
var ErrRequestFailed = errors.New("master: request failed")

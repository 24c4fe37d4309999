package adb

import (
	"context"
)

// Transport is the adb host-protocol surface used by Client, Tracker and
// Server. Serials are the transport identities reported by the adb server.
type Transport interface {
	// Shell runs cmd on the device and returns its combined output.
	Shell(ctx context.Context, serial, cmd string, args ...string) (string, error)

	// State returns the connection state of one device.
	State(ctx context.Context, serial string) (DeviceState, error)

	// Push copies a local file to the device.
	Push(ctx context.Context, serial, local, remote string) error

	// Pull copies a device file to local.
	Pull(ctx context.Context, serial, remote, local string) error

	// Devices lists every device the server knows, with its state.
	Devices(ctx context.Context) (map[string]DeviceState, error)

	// Watch subscribes to device state changes.
	Watch(ctx context.Context) (Watcher, error)

	// ServerVersion returns the adb server's protocol version.
	ServerVersion(ctx context.Context) (int, error)
}

// Watcher delivers device state changes until Close is called, the
// context passed to Watch ends or the server connection is lost. C is
// closed in every case; Err reports why when the connection was lost.
type Watcher interface {
	C() <-chan StateChange
	Err() error
	Close()
}

// StateChange is one device transition. State is StateDisconnected when
// the device left the listing.
type StateChange struct {
	Serial string
	State  DeviceState
}

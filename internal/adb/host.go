package adb

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	goadb "github.com/zach-klippenstein/goadb"

	"github.com/nerrad567/handset-agent/internal/infrastructure/config"
)

// HostTransport speaks the adb host protocol to an adb server over TCP.
type HostTransport struct {
	client  *goadb.Adb
	timeout time.Duration
}

// NewHostTransport connects to the adb server described by cfg. The adb
// binary must exist; the library starts a server with it when none answers.
func NewHostTransport(cfg config.ADBConfig) (*HostTransport, error) {
	bin, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("locating adb binary %q: %w", cfg.Binary, err)
	}

	client, err := goadb.NewWithConfig(goadb.ServerConfig{
		PathToAdb: bin,
		Host:      cfg.ServerHost,
		Port:      cfg.ServerPort,
	})
	if err != nil {
		return nil, fmt.Errorf("creating adb client: %w", err)
	}
	return &HostTransport{client: client, timeout: cfg.CommandTimeout}, nil
}

// call runs fn under ctx and the per-call timeout. The library has no
// cancellation, so an abandoned call finishes in the background.
func call[T any](ctx context.Context, timeout time.Duration, op string, fn func() (T, error)) (T, error) {
	var zero T
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%w: %s: %w", ErrCommandFailed, op, err)
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return zero, fmt.Errorf("%w: %s: %w", ErrCommandFailed, op, r.err)
		}
		return r.v, nil
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %s: %w", ErrCommandFailed, op, ctx.Err())
	}
}

func (h *HostTransport) device(serial string) *goadb.Device {
	return h.client.Device(goadb.DeviceWithSerial(serial))
}

// Shell implements Transport.
func (h *HostTransport) Shell(ctx context.Context, serial, cmd string, args ...string) (string, error) {
	return call(ctx, h.timeout, "shell "+cmd, func() (string, error) {
		return h.device(serial).RunCommand(cmd, args...)
	})
}

// State implements Transport.
func (h *HostTransport) State(ctx context.Context, serial string) (DeviceState, error) {
	return call(ctx, h.timeout, "get-state", func() (DeviceState, error) {
		s, err := h.device(serial).State()
		if err != nil {
			return "", err
		}
		return fromHostState(s), nil
	})
}

// Push implements Transport. The remote file keeps the local permission
// bits and modification time.
func (h *HostTransport) Push(ctx context.Context, serial, local, remote string) error {
	_, err := call(ctx, h.timeout, "push "+remote, func() (struct{}, error) {
		src, err := os.Open(local) //nolint:gosec // paths come from the resources dir
		if err != nil {
			return struct{}{}, err
		}
		defer src.Close()

		info, err := src.Stat()
		if err != nil {
			return struct{}{}, err
		}
		dst, err := h.device(serial).OpenWrite(remote, info.Mode().Perm(), info.ModTime())
		if err != nil {
			return struct{}{}, err
		}
		if _, err := io.Copy(dst, src); err != nil {
			_ = dst.Close()
			return struct{}{}, err
		}
		return struct{}{}, dst.Close()
	})
	return err
}

// Pull implements Transport. A partial local file is removed on failure.
func (h *HostTransport) Pull(ctx context.Context, serial, remote, local string) error {
	_, err := call(ctx, h.timeout, "pull "+remote, func() (struct{}, error) {
		src, err := h.device(serial).OpenRead(remote)
		if err != nil {
			return struct{}{}, err
		}
		defer src.Close()

		dst, err := os.Create(local) //nolint:gosec // local temp path built by Client
		if err != nil {
			return struct{}{}, err
		}
		if _, err := io.Copy(dst, src); err != nil {
			_ = dst.Close()
			_ = os.Remove(local)
			return struct{}{}, err
		}
		if err := dst.Close(); err != nil {
			_ = os.Remove(local)
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}

// Devices implements Transport. A device that vanishes between listing
// and the state query is left out.
func (h *HostTransport) Devices(ctx context.Context) (map[string]DeviceState, error) {
	return call(ctx, h.timeout, "devices", func() (map[string]DeviceState, error) {
		serials, err := h.client.ListDeviceSerials()
		if err != nil {
			return nil, err
		}
		devices := make(map[string]DeviceState, len(serials))
		for _, serial := range serials {
			s, err := h.device(serial).State()
			if err != nil {
				continue
			}
			if state := fromHostState(s); state != StateDisconnected {
				devices[serial] = state
			}
		}
		return devices, nil
	})
}

// ServerVersion implements Transport.
func (h *HostTransport) ServerVersion(ctx context.Context) (int, error) {
	return call(ctx, h.timeout, "version", h.client.ServerVersion)
}

// Watch implements Transport.
func (h *HostTransport) Watch(ctx context.Context) (Watcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := &hostWatcher{
		dw:   h.client.NewDeviceWatcher(),
		c:    make(chan StateChange),
		stop: make(chan struct{}),
	}
	go w.forward(ctx)
	return w, nil
}

// hostWatcher converts library events into StateChanges.
type hostWatcher struct {
	dw   *goadb.DeviceWatcher
	c    chan StateChange
	stop chan struct{}
	once sync.Once
}

func (w *hostWatcher) forward(ctx context.Context) {
	defer close(w.c)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-w.dw.C():
			if !ok {
				return
			}
			change := StateChange{Serial: ev.Serial, State: fromHostState(ev.NewState)}
			select {
			case w.c <- change:
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			}
		}
	}
}

func (w *hostWatcher) C() <-chan StateChange { return w.c }

func (w *hostWatcher) Err() error { return w.dw.Err() }

func (w *hostWatcher) Close() {
	w.once.Do(func() {
		close(w.stop)
		w.dw.Shutdown()
	})
}

func fromHostState(s goadb.DeviceState) DeviceState {
	switch s {
	case goadb.StateOnline:
		return StateDevice
	case goadb.StateOffline:
		return StateOffline
	case goadb.StateUnauthorized:
		return StateUnauthorized
	case goadb.StateDisconnected:
		return StateDisconnected
	default:
		return StateUnknown
	}
}

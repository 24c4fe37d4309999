package adb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeADB writes a shell script standing in for the adb binary.
func fakeADB(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "adb")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil { //nolint:gosec // test executable
		t.Fatal(err)
	}
	return path
}

// fakeTransport answers requests from canned replies keyed like the adb
// command line, e.g. "-s R58M shell getprop ro.product.model".
type fakeTransport struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	hook    func(args []string) error
	calls   []string

	listings chan map[string]DeviceState
	watchers chan *fakeWatcher
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		outputs:  make(map[string]string),
		errs:     make(map[string]error),
		listings: make(chan map[string]DeviceState, 4),
		watchers: make(chan *fakeWatcher, 4),
	}
}

func (f *fakeTransport) on(cmd, out string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[cmd] = out
}

func (f *fakeTransport) fail(cmd string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[cmd] = err
}

func (f *fakeTransport) run(args ...string) (string, error) {
	key := strings.Join(args, " ")
	f.mu.Lock()
	f.calls = append(f.calls, key)
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(args); err != nil {
			return "", err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[key]; ok {
		return "", err
	}
	if out, ok := f.outputs[key]; ok {
		return out, nil
	}
	return "", fmt.Errorf("%w: unexpected request %q", ErrCommandFailed, key)
}

func (f *fakeTransport) Shell(_ context.Context, serial, cmd string, args ...string) (string, error) {
	return f.run(append([]string{"-s", serial, "shell", cmd}, args...)...)
}

func (f *fakeTransport) State(_ context.Context, serial string) (DeviceState, error) {
	out, err := f.run("-s", serial, "get-state")
	return DeviceState(strings.TrimSpace(out)), err
}

func (f *fakeTransport) Push(_ context.Context, serial, local, remote string) error {
	_, err := f.run("-s", serial, "push", local, remote)
	return err
}

func (f *fakeTransport) Pull(_ context.Context, serial, remote, local string) error {
	_, err := f.run("-s", serial, "pull", remote, local)
	return err
}

func (f *fakeTransport) Devices(ctx context.Context) (map[string]DeviceState, error) {
	select {
	case l := <-f.listings:
		return l, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Watch(ctx context.Context) (Watcher, error) {
	select {
	case w := <-f.watchers:
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) ServerVersion(context.Context) (int, error) {
	out, err := f.run("version")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(out)
}

func (f *fakeTransport) called(cmd string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == cmd {
			return true
		}
	}
	return false
}

// fakeWatcher is driven by the test through send and end.
type fakeWatcher struct {
	c    chan StateChange
	err  error
	once sync.Once
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{c: make(chan StateChange, 8)}
}

func (w *fakeWatcher) send(serial string, state DeviceState) {
	w.c <- StateChange{Serial: serial, State: state}
}

// end closes the watch as a lost connection would.
func (w *fakeWatcher) end(err error) {
	w.err = err
	w.Close()
}

func (w *fakeWatcher) C() <-chan StateChange { return w.c }
func (w *fakeWatcher) Err() error            { return w.err }
func (w *fakeWatcher) Close()                { w.once.Do(func() { close(w.c) }) }

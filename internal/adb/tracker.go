package adb

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/handset-agent/internal/device"
)

const (
	defaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
)

var errWatchEnded = errors.New("device watch ended")

// Listener receives device transitions from a Tracker.
type Listener interface {
	OnAttach(id device.Identity)
	OnDetach(id device.Identity)
}

// Tracker follows the adb server's device list and reports transitions.
//
// A device attaches when it first appears in the listing, in any state;
// the online wait is the listener's business. It detaches when it leaves
// the listing. State changes in between are not reported.
type Tracker struct {
	tr       Transport
	listener Listener
	logger   Logger

	retryDelay time.Duration

	mu    sync.RWMutex
	known map[string]DeviceState
}

// NewTracker creates a tracker that reports to listener.
func NewTracker(tr Transport, listener Listener) *Tracker {
	return &Tracker{
		tr:         tr,
		listener:   listener,
		logger:     noopLogger{},
		retryDelay: defaultRetryDelay,
		known:      make(map[string]DeviceState),
	}
}

// SetLogger sets the logger for the tracker.
func (t *Tracker) SetLogger(logger Logger) {
	t.logger = logger
}

// Devices returns the serials currently listed by adb with their states.
func (t *Tracker) Devices() map[string]DeviceState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.known)
}

// Run tracks devices until ctx is cancelled. A lost watch is reopened with
// exponential backoff, reset whenever a watch got as far as a listing.
// Each new watch starts by diffing a full listing against the last known
// one, so transitions missed while disconnected are still reported.
func (t *Tracker) Run(ctx context.Context) error {
	delay := t.retryDelay
	for {
		synced, err := t.follow(ctx)
		if ctx.Err() != nil {
			return nil //nolint:nilerr // cancellation is a normal stop
		}
		if synced {
			delay = t.retryDelay
		}

		t.logger.Warn("device tracking interrupted, retrying", "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

// follow runs one watch until it ends. synced reports whether the initial
// listing was applied.
func (t *Tracker) follow(ctx context.Context) (synced bool, err error) {
	// Subscribe before listing so nothing between the two is lost; replayed
	// changes are idempotent.
	w, err := t.tr.Watch(ctx)
	if err != nil {
		return false, fmt.Errorf("watching devices: %w", err)
	}
	defer w.Close()

	listing, err := t.tr.Devices(ctx)
	if err != nil {
		return false, fmt.Errorf("listing devices: %w", err)
	}
	t.apply(listing)

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case change, ok := <-w.C():
			if !ok {
				if werr := w.Err(); werr != nil {
					return true, fmt.Errorf("%w: %w", errWatchEnded, werr)
				}
				return true, errWatchEnded
			}
			t.update(change)
		}
	}
}

// apply diffs a full listing against the known set and notifies the
// listener. Detaches are delivered before attaches, each in serial order.
func (t *Tracker) apply(current map[string]DeviceState) {
	t.mu.Lock()
	var attached, detached []string
	for serial := range current {
		if _, ok := t.known[serial]; !ok {
			attached = append(attached, serial)
		}
	}
	for serial := range t.known {
		if _, ok := current[serial]; !ok {
			detached = append(detached, serial)
		}
	}
	t.known = make(map[string]DeviceState, len(current))
	maps.Copy(t.known, current)
	t.mu.Unlock()

	slices.Sort(attached)
	slices.Sort(detached)

	for _, serial := range detached {
		t.logger.Info("device detached", "serial", serial)
		t.listener.OnDetach(device.Identity(serial))
	}
	for _, serial := range attached {
		t.logger.Info("device attached", "serial", serial, "state", current[serial])
		t.listener.OnAttach(device.Identity(serial))
	}
}

// update applies a single transition.
func (t *Tracker) update(change StateChange) {
	t.mu.Lock()
	_, was := t.known[change.Serial]
	gone := change.State == StateDisconnected
	if gone {
		delete(t.known, change.Serial)
	} else {
		t.known[change.Serial] = change.State
	}
	t.mu.Unlock()

	switch {
	case gone && was:
		t.logger.Info("device detached", "serial", change.Serial)
		t.listener.OnDetach(device.Identity(change.Serial))
	case !gone && !was:
		t.logger.Info("device attached", "serial", change.Serial, "state", change.State)
		t.listener.OnAttach(device.Identity(change.Serial))
	}
}

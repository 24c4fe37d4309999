package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/handset-agent/internal/device"
	"github.com/nerrad567/handset-agent/internal/provision"
)

const (
	// DefaultOnlineTimeout bounds the wait for a device to come online.
	DefaultOnlineTimeout = 60 * time.Second

	observerTimeout = 5 * time.Second
)

// Bridge is the transport that detected the device.
type Bridge interface {
	// WaitUntilOnline blocks until the device is online, the timeout elapses
	// (false, nil) or ctx is cancelled.
	WaitUntilOnline(ctx context.Context, id device.Identity, timeout time.Duration) (bool, error)

	// Conn returns the transport connection for an attached device.
	Conn(id device.Identity) device.Conn
}

// Master is the central device registry.
type Master interface {
	// GetDevice returns device.ErrDeviceNotFound for unknown identities.
	GetDevice(ctx context.Context, id device.Identity) (*device.Record, error)
	SaveDevice(ctx context.Context, record device.Record) error
}

// Provisioner builds handles for devices seen for the first time by this process.
type Provisioner interface {
	Provision(ctx context.Context, conn device.Conn, id device.Identity) (*device.Handle, provision.Report, error)
	Hydrate(ctx context.Context, conn device.Conn, record device.Record) (*device.Handle, error)
}

// CompanionFactory opens the companion sessions for a newly built handle.
type CompanionFactory func(ctx context.Context, id device.Identity, conn device.Conn) (device.Companions, error)

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps are the collaborators a Dispatcher drives. Companions is optional.
type Deps struct {
	Registry    *device.Registry
	Bridge      Bridge
	Master      Master
	Provisioner Provisioner
	Companions  CompanionFactory
}

// Options tune dispatcher behaviour.
type Options struct {
	// Endpoint is written into every record on attach.
	Endpoint device.Endpoint

	// OnlineTimeout defaults to DefaultOnlineTimeout when zero.
	OnlineTimeout time.Duration

	// MaxConcurrentProvisions bounds first-sighting work across identities.
	// Zero means unbounded.
	MaxConcurrentProvisions int

	// Clock defaults to time.Now.
	Clock func() time.Time
}

type taskKind int

const (
	attachTask taskKind = iota
	detachTask
)

type task struct {
	kind       taskKind
	superseded bool
}

// lane is the FIFO of pending events for one identity.
type lane struct {
	queue []*task

	// cancelWait is set while the running attach waits for the device to
	// come online.
	cancelWait context.CancelFunc
}

// Dispatcher serialises lifecycle events per identity.
//
// All public methods are thread-safe.
type Dispatcher struct {
	deps     Deps
	endpoint device.Endpoint
	timeout  time.Duration
	sem      *semaphore.Weighted
	now      func() time.Time

	logger    Logger
	observers []Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	idle   *sync.Cond
	lanes  map[device.Identity]*lane
	active int
	closed bool
}

// NewDispatcher creates a dispatcher. Observers may be added before the
// first event is submitted.
func NewDispatcher(deps Deps, opts Options) *Dispatcher {
	if opts.OnlineTimeout <= 0 {
		opts.OnlineTimeout = DefaultOnlineTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		deps:     deps,
		endpoint: opts.Endpoint,
		timeout:  opts.OnlineTimeout,
		now:      opts.Clock,
		logger:   noopLogger{},
		ctx:      ctx,
		cancel:   cancel,
		lanes:    make(map[device.Identity]*lane),
	}
	d.idle = sync.NewCond(&d.mu)
	if opts.MaxConcurrentProvisions > 0 {
		d.sem = semaphore.NewWeighted(int64(opts.MaxConcurrentProvisions))
	}
	return d
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// AddObserver registers an observer for processed events.
func (d *Dispatcher) AddObserver(o Observer) {
	d.observers = append(d.observers, o)
}

// OnAttach queues an attach for id and returns immediately.
func (d *Dispatcher) OnAttach(id device.Identity) {
	if err := d.enqueue(id, attachTask); err != nil {
		d.logger.Warn("attach dropped", "serial", id, "error", err)
	}
}

// OnDetach queues a detach for id and returns immediately.
func (d *Dispatcher) OnDetach(id device.Identity) {
	if err := d.enqueue(id, detachTask); err != nil {
		d.logger.Warn("detach dropped", "serial", id, "error", err)
	}
}

// Wait blocks until every queued event has been processed.
func (d *Dispatcher) Wait() {
	d.mu.Lock()
	for d.active > 0 {
		d.idle.Wait()
	}
	d.mu.Unlock()
}

// ActiveLanes returns the number of identities with queued or running events.
func (d *Dispatcher) ActiveLanes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Close stops accepting events, cancels in-flight work and waits for lanes
// to drain. Events still queued are discarded.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.Wait()
}

func (d *Dispatcher) enqueue(id device.Identity, kind taskKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	l, ok := d.lanes[id]
	if !ok {
		l = &lane{}
		d.lanes[id] = l
		d.active++
		go d.drain(id, l)
	}

	if kind == detachTask {
		// The device is gone: any attach ahead of this detach that has not
		// reached provisioning would only wait out the online timeout.
		if l.cancelWait != nil {
			l.cancelWait()
			l.cancelWait = nil
		}
		for _, t := range l.queue {
			if t.kind == attachTask {
				t.superseded = true
			}
		}
	}

	l.queue = append(l.queue, &task{kind: kind})
	return nil
}

func (d *Dispatcher) drain(id device.Identity, l *lane) {
	for {
		d.mu.Lock()
		if len(l.queue) == 0 || d.ctx.Err() != nil {
			if dropped := len(l.queue); dropped > 0 {
				d.logger.Warn("discarding queued lifecycle events on shutdown", "serial", id, "count", dropped)
			}
			delete(d.lanes, id)
			d.active--
			if d.active == 0 {
				d.idle.Broadcast()
			}
			d.mu.Unlock()
			return
		}
		t := l.queue[0]
		l.queue = l.queue[1:]
		d.mu.Unlock()

		switch t.kind {
		case attachTask:
			d.attach(id, l, t)
		case detachTask:
			d.detach(id)
		}
	}
}

func (d *Dispatcher) attach(id device.Identity, l *lane, t *task) {
	start := d.now()
	d.logger.Info("device attached", "serial", id)

	if err := d.awaitOnline(id, l, t); err != nil {
		d.attachFailed(id, start, err)
		return
	}

	ctx := d.ctx
	h, hit := d.deps.Registry.Get(id)

	var (
		report      provision.Report
		provisioned bool
	)
	if !hit {
		var err error
		h, report, err = d.firstSighting(ctx, id)
		if err != nil {
			d.attachFailed(id, start, err)
			return
		}
		provisioned = true
	} else {
		d.logger.Debug("device handle reused", "serial", id)
	}

	h.MarkOnline(d.endpoint, d.now())
	record := h.Snapshot()
	syncErr := d.push(ctx, record)

	ev := newEvent(EventAttached, id, d.now())
	ev.Status = record.Status
	ev.Provisioned = provisioned
	ev.Degraded = report.Degraded
	ev.Duration = d.now().Sub(start)
	ev.Record = &record
	d.emit(ev)

	d.logger.Info("device online",
		"serial", id,
		"provisioned", provisioned,
		"duration", ev.Duration,
	)

	if syncErr != nil {
		d.syncFailed(id, record, syncErr)
	}
}

// awaitOnline waits for the device unless a later detach supersedes the attach.
func (d *Dispatcher) awaitOnline(id device.Identity, l *lane, t *task) error {
	waitCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()

	d.mu.Lock()
	superseded := t.superseded
	if !superseded {
		l.cancelWait = cancel
	}
	d.mu.Unlock()
	if superseded {
		return ErrSuperseded
	}

	ok, err := d.deps.Bridge.WaitUntilOnline(waitCtx, id, d.timeout)

	d.mu.Lock()
	l.cancelWait = nil
	d.mu.Unlock()

	if waitCtx.Err() != nil && d.ctx.Err() == nil {
		return ErrSuperseded
	}
	if err != nil {
		return fmt.Errorf("waiting for device online: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w after %v", ErrOnlineTimeout, d.timeout)
	}
	return nil
}

// firstSighting builds and registers a handle for an identity this process
// has not seen before.
func (d *Dispatcher) firstSighting(ctx context.Context, id device.Identity) (*device.Handle, provision.Report, error) {
	var report provision.Report

	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return nil, report, fmt.Errorf("waiting for provisioning slot: %w", err)
		}
		defer d.sem.Release(1)
	}

	conn := d.deps.Bridge.Conn(id)

	stored, err := d.deps.Master.GetDevice(ctx, id)
	if err == nil && stored == nil {
		err = device.ErrDeviceNotFound
	}

	var h *device.Handle
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		d.logger.Info("device unknown to master, provisioning", "serial", id)
		h, report, err = d.deps.Provisioner.Provision(ctx, conn, id)
		if err != nil {
			return nil, report, fmt.Errorf("provisioning: %w", err)
		}
	case err != nil:
		return nil, report, fmt.Errorf("looking up device in master: %w", err)
	default:
		d.logger.Info("device known to master, hydrating", "serial", id)
		record := *stored
		if record.ID != id {
			d.logger.Warn("master record id does not match serial, using serial",
				"serial", id, "record_id", record.ID)
			record.ID = id
		}
		h, err = d.deps.Provisioner.Hydrate(ctx, conn, record)
		if err != nil {
			return nil, report, fmt.Errorf("hydrating: %w", err)
		}
	}

	if d.deps.Companions != nil {
		companions, err := d.deps.Companions(ctx, id, conn)
		if err != nil {
			return nil, report, fmt.Errorf("opening companion sessions: %w", err)
		}
		if err := h.AttachCompanions(companions); err != nil {
			return nil, report, fmt.Errorf("attaching companion sessions: %w", err)
		}
	}

	if err := d.deps.Registry.Insert(h); err != nil {
		h.Close() //nolint:errcheck // Handle was never published
		return nil, report, fmt.Errorf("registering handle: %w", err)
	}

	return h, report, nil
}

func (d *Dispatcher) detach(id device.Identity) {
	start := d.now()

	h, ok := d.deps.Registry.Get(id)
	if !ok {
		d.logger.Debug("detach for unregistered device ignored", "serial", id)
		return
	}

	h.MarkOffline(d.now())
	record := h.Snapshot()
	syncErr := d.push(d.ctx, record)

	ev := newEvent(EventDetached, id, d.now())
	ev.Status = record.Status
	ev.Duration = d.now().Sub(start)
	ev.Record = &record
	d.emit(ev)

	d.logger.Info("device offline", "serial", id)

	if syncErr != nil {
		d.syncFailed(id, record, syncErr)
	}
}

func (d *Dispatcher) push(ctx context.Context, record device.Record) error {
	if err := d.deps.Master.SaveDevice(ctx, record); err != nil {
		return fmt.Errorf("%w: %w", ErrSync, err)
	}
	return nil
}

func (d *Dispatcher) attachFailed(id device.Identity, start time.Time, err error) {
	d.logger.Error("attach aborted", "serial", id, "error", err)

	ev := newEvent(EventAttachFailed, id, d.now())
	ev.Duration = d.now().Sub(start)
	ev.Error = err.Error()
	d.emit(ev)
}

func (d *Dispatcher) syncFailed(id device.Identity, record device.Record, err error) {
	d.logger.Error("device record not pushed to master", "serial", id, "status", record.Status, "error", err)

	ev := newEvent(EventSyncFailed, id, d.now())
	ev.Status = record.Status
	ev.Error = err.Error()
	d.emit(ev)
}

func (d *Dispatcher) emit(ev Event) {
	if len(d.observers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
	defer cancel()

	for _, o := range d.observers {
		o.Observe(ctx, ev)
	}
}

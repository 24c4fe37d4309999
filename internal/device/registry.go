package device

import (
	"errors"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry maps device identities to their live handles.
//
// Entries are added on first local attach and stay until Close, so a detach
// only changes status and a reconnect is a cache hit.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	handles map[Identity]*Handle
	logger  Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[Identity]*Handle),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Get returns the handle for id, if present.
func (r *Registry) Get(id Identity) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// Insert adds h. Returns ErrDeviceExists if the identity is already registered.
func (r *Registry) Insert(h *Handle) error {
	id := h.ID()

	r.mu.Lock()
	if _, exists := r.handles[id]; exists {
		r.mu.Unlock()
		return ErrDeviceExists
	}
	r.handles[id] = h
	count := len(r.handles)
	r.mu.Unlock()

	r.logger.Debug("device handle registered", "serial", id, "count", count)
	return nil
}

// List returns record snapshots for all registered devices, sorted by identity.
func (r *Registry) List() []Record {
	r.mu.RLock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	records := make([]Record, 0, len(handles))
	for _, h := range handles {
		records = append(records, h.Snapshot())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
	return records
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Close evicts every handle and closes its companion sessions.
func (r *Registry) Close() error {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[Identity]*Handle)
	r.mu.Unlock()

	var errs []error
	for id, h := range handles {
		if err := h.Close(); err != nil {
			r.logger.Warn("closing device handle", "serial", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

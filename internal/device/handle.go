package device

import (
	"errors"
	"sync"
	"time"
)

// Conn is the live transport connection to a device.
// The handle holds the only reference the agent keeps to it.
type Conn interface {
	Serial() Identity
}

// Session is an open companion-service session bound to one device.
type Session interface {
	Name() string
	Close() error
}

// Companions groups the three companion sessions a handle owns.
type Companions struct {
	Mirror     Session
	Input      Session
	Automation Session
}

func (c Companions) each(fn func(Session)) {
	for _, s := range []Session{c.Mirror, c.Input, c.Automation} {
		if s != nil {
			fn(s)
		}
	}
}

// Handle is the runtime aggregate for one attached device.
//
// The lifecycle dispatcher is the only writer; it serialises all transitions
// for an identity. The mutex exists for concurrent readers such as the API.
type Handle struct {
	mu         sync.RWMutex
	record     Record
	conn       Conn
	companions Companions
	attached   bool
	closed     bool
}

// NewHandle creates a handle owning record and conn.
func NewHandle(record Record, conn Conn) *Handle {
	return &Handle{record: record.Clone(), conn: conn}
}

// ID returns the device identity.
func (h *Handle) ID() Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.record.ID
}

// Conn returns the transport connection.
func (h *Handle) Conn() Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn
}

// AttachCompanions binds companion sessions to the handle. It may succeed once.
func (h *Handle) AttachCompanions(c Companions) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHandleClosed
	}
	if h.attached {
		return ErrCompanionsAttached
	}
	h.companions = c
	h.attached = true
	return nil
}

// Companions returns the companion sessions and whether they are usable.
// Sessions are invalid before attachment and after Close.
func (h *Handle) Companions() (Companions, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.companions, h.attached && !h.closed
}

// MarkOnline records that the device is served by this agent at ep.
func (h *Handle) MarkOnline(ep Endpoint, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.record.Status = StatusIdle
	h.record.AgentIP = ep.Host
	h.record.AgentPort = ep.Port
	t := now
	h.record.LastOnlineTime = &t
}

// MarkOffline records that the device has disconnected.
func (h *Handle) MarkOffline(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.record.Status = StatusOffline
	t := now
	h.record.LastOfflineTime = &t
}

// Snapshot returns a copy of the current record.
func (h *Handle) Snapshot() Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.record.Clone()
}

// Close closes the companion sessions. It is safe to call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	companions := h.companions
	h.mu.Unlock()

	var errs []error
	companions.each(func(s Session) {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

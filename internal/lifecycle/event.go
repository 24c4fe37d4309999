package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/handset-agent/internal/device"
)

// EventType names a lifecycle outcome.
type EventType string

// Event types.
const (
	EventAttached     EventType = "attached"
	EventDetached     EventType = "detached"
	EventAttachFailed EventType = "attach_failed"
	EventSyncFailed   EventType = "sync_failed"
)

// Event describes one processed attach or detach.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        EventType       `json:"type"`
	Identity    device.Identity `json:"serial"`
	Status      device.Status   `json:"status,omitempty"`

	// Provisioned is true when the attach built a new handle and installed
	// the companion tools, either from scratch or from a master record.
	Provisioned bool `json:"provisioned"`

	// Degraded lists hardware probes that fell back to placeholders.
	Degraded []string `json:"degraded,omitempty"`

	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`

	// Record is the device document after the transition, when one exists.
	Record *device.Record `json:"record,omitempty"`
}

func newEvent(t EventType, id device.Identity, now time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Type:      t,
		Identity:  id,
		Timestamp: now,
	}
}

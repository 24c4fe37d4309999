package device

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Identity is the transport-assigned serial of a physical device.
// It is stable across reconnects and never reassigned.
type Identity string

// String implements fmt.Stringer.
func (id Identity) String() string {
	return string(id)
}

// Status is the registry-facing state of a device.
type Status string

// Status values.
const (
	// StatusProvisioningUnseen marks a record under construction; it is never
	// left on a record once an attach or detach has finished.
	StatusProvisioningUnseen Status = "provisioning_unseen"
	StatusIdle               Status = "idle"
	StatusOffline            Status = "offline"
)

// Settled reports whether s is a terminal state for a finished lifecycle event.
func (s Status) Settled() bool {
	return s == StatusIdle || s == StatusOffline
}

// Platform identifies the device operating system family.
type Platform string

// PlatformAndroid is the only platform this agent manages.
const PlatformAndroid Platform = "android"

// Record is the device document stored by the master.
//
// JSON field names follow the master's wire format.
type Record struct {
	ID              Identity   `json:"id"`
	Platform        Platform   `json:"platform"`
	CreateTime      time.Time  `json:"createTime"`
	LastOnlineTime  *time.Time `json:"lastOnlineTime,omitempty"`
	LastOfflineTime *time.Time `json:"lastOfflineTime,omitempty"`
	Status          Status     `json:"status"`

	CPUInfo       string `json:"cpuInfo"`
	MemSize       string `json:"memSize"`
	Name          string `json:"name"`
	SystemVersion string `json:"systemVersion"`
	ScreenWidth   int    `json:"screenWidth"`
	ScreenHeight  int    `json:"screenHeight"`
	ImgURL        string `json:"imgUrl,omitempty"`

	AgentIP   string `json:"agentIp,omitempty"`
	AgentPort int    `json:"agentPort,omitempty"`
}

// Clone returns a copy of r that shares no pointers with it.
func (r *Record) Clone() Record {
	c := *r
	if r.LastOnlineTime != nil {
		t := *r.LastOnlineTime
		c.LastOnlineTime = &t
	}
	if r.LastOfflineTime != nil {
		t := *r.LastOfflineTime
		c.LastOfflineTime = &t
	}
	return c
}

// Endpoint is the host and port at which this agent serves a device.
type Endpoint struct {
	Host string
	Port int
}

// Resolution is a screen geometry in pixels.
type Resolution struct {
	Width  int
	Height int
}

// String returns the "WIDTHxHEIGHT" form.
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ParseResolution parses a "WIDTHxHEIGHT" string such as "1080x1920".
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.TrimSpace(s), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidResolution, s)
	}

	width, err := strconv.Atoi(w)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: width %q: %w", ErrInvalidResolution, w, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: height %q: %w", ErrInvalidResolution, h, err)
	}
	if width <= 0 || height <= 0 {
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidResolution, s)
	}

	return Resolution{Width: width, Height: height}, nil
}

package companion

import (
	"context"
	"sync/atomic"

	"github.com/nerrad567/handset-agent/internal/device"
)

// Session binds one companion tool to one device.
type Session struct {
	tool   string
	serial device.Identity
	closed atomic.Bool
}

// Name returns the tool name.
func (s *Session) Name() string { return s.tool }

// Serial returns the device the session is bound to.
func (s *Session) Serial() device.Identity { return s.serial }

// Valid reports whether the session is still open.
func (s *Session) Valid() bool { return !s.closed.Load() }

// Close invalidates the session. Further calls are no-ops.
func (s *Session) Close() error {
	s.closed.Store(true)
	return nil
}

// MirrorSession is the screen mirroring session backed by minicap.
type MirrorSession struct{ Session }

// InputSession is the input injection session backed by minitouch.
type InputSession struct{ Session }

// AutomationSession is the UI automation session backed by the
// uiautomator2 server.
type AutomationSession struct{ Session }

// NewSessions opens the three sessions for a device. Its signature matches
// lifecycle.CompanionFactory.
func NewSessions(_ context.Context, id device.Identity, _ device.Conn) (device.Companions, error) {
	return device.Companions{
		Mirror:     &MirrorSession{Session{tool: ToolMinicap, serial: id}},
		Input:      &InputSession{Session{tool: ToolMinitouch, serial: id}},
		Automation: &AutomationSession{Session{tool: ToolUiautomator2, serial: id}},
	}, nil
}

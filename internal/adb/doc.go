// Package adb talks to Android devices through an adb server.
//
// It provides three pieces:
//
//   - Client runs one-shot requests against a device and implements the
//     probes used during provisioning (CPU, memory, name, OS version,
//     resolution, screenshot) plus the online wait used by attach handling.
//   - Tracker watches the server's device list and reports attach/detach
//     transitions to a Listener.
//   - Server supervises `adb nodaemon server` via the process package when
//     the agent owns the adb server.
//
// All device and server access goes through a Transport. HostTransport
// speaks the adb host protocol over TCP; tests substitute canned replies.
package adb

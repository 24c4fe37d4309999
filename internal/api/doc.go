// Package api implements the agent's local HTTP API and WebSocket feed.
//
// Endpoints (all under /api/v1):
//   - GET /health                  component health and agent identity
//   - GET /metrics                 runtime, registry and adb server statistics
//   - GET /devices                 devices known to this agent process
//   - GET /devices/{id}            one device record
//   - GET /devices/{id}/history    lifecycle journal, newest first
//   - GET /ws                      live lifecycle events
//
// The API is read-only. Device state changes only through attach and detach
// events from the bridge; the API observes them.
//
// WebSocket clients send {"type":"subscribe","payload":{"channels":["device.lifecycle"]}}
// and then receive every lifecycle event as
// {"type":"event","event_type":"device.lifecycle","payload":{...}}.
package api

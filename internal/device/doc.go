// Package device models the handsets attached to this agent.
//
// A Handle is the runtime aggregate for one physical device: the Record the
// master stores, the live transport connection, and the three companion
// sessions (screen mirroring, input injection, automation server) created once
// per handle. The Registry maps each Identity to exactly one Handle for the
// lifetime of the process.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────┐
//	│                     device package                        │
//	│                                                           │
//	│  ┌──────────────┐    ┌──────────────┐   ┌──────────────┐  │
//	│  │   Registry   │───▶│    Handle    │──▶│    Record    │  │
//	│  │ (registry.go)│    │  (handle.go) │   │  (types.go)  │  │
//	│  │ • Get/Insert │    │ • MarkOnline │   │ • master doc │  │
//	│  │ • List       │    │ • MarkOffline│   │ • Resolution │  │
//	│  └──────────────┘    │ • Companions │   └──────────────┘  │
//	│                      └──────────────┘                     │
//	│  ┌──────────────────────────────┐                         │
//	│  │ SQLiteJournal (journal.go)   │── lifecycle_events      │
//	│  └──────────────────────────────┘                         │
//	└──────────────────────────────────────────────────────────┘
//
// # Usage
//
//	registry := device.NewRegistry()
//	registry.SetLogger(log)
//
//	h := device.NewHandle(record, conn)
//	if err := registry.Insert(h); err != nil {
//	    return err
//	}
//
//	h.MarkOnline(device.Endpoint{Host: "10.0.0.5", Port: 10004}, time.Now())
//	snapshot := h.Snapshot()
//
// # Thread Safety
//
// The Registry is safe for concurrent use; lookups take a read lock and no
// lock is held while talking to a device. Each Handle guards its Record with
// its own mutex so API readers can snapshot while the lifecycle dispatcher
// mutates.
package device

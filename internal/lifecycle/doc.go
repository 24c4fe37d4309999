// Package lifecycle reacts to device attach and detach notifications.
//
// The Dispatcher is the entry point the device bridge calls. OnAttach and
// OnDetach return immediately; the work is queued on a per-identity lane.
// A lane is a FIFO drained by a single goroutine, created when the first
// event for an identity arrives and retired once it is empty. Events for one
// identity therefore never overlap, while different identities proceed in
// parallel without a global lock.
//
// # Attach
//
//  1. Wait for the device to report online (bounded, default 60s).
//  2. Registry hit: reuse the handle untouched.
//  3. Registry miss: ask the master. Unknown devices are provisioned from
//     scratch; known devices are hydrated from the stored record. Both paths
//     install the companion tools. The new handle is then registered.
//  4. Mark the device idle at this agent's endpoint and push the record.
//
// # Detach
//
// Devices never seen locally are ignored. Otherwise the record is marked
// offline and pushed.
//
// A detach that arrives while the attach ahead of it is still waiting for
// the device to come online cancels that wait. Provisioning already under way
// is never interrupted; the detach simply runs after it.
//
// Push failures are reported as sync_failed events and logged. Local state is
// kept; the next transition pushes the full record again.
package lifecycle

// Package oven contains the device-facing domain model for Ovenlink Core.
//
// This package manages:
//   - The canonical oven state Snapshot and its partial-update merge
//     semantics (StateCache)
//   - Temperature, heating-element, and stage validation rules
//   - Command construction, validation, and serialised dispatch (Dispatcher)
//   - Fan-out of state changes to subscribers (Multiplexer)
//   - Persistent cook history (CookHistoryRepository)
//
// # State model
//
// The vendor cloud pushes partial state frames: any subsystem absent from a
// frame is unchanged. StateCache merges each frame into the device's
// Snapshot under a mutex and emits a ChangeSet naming exactly the fields
// that changed. Duplicate frames produce no ChangeSet.
//
// # Command model
//
// Commands are validated against the current Snapshot before transmission
// and dispatched strictly one at a time per device. There is no automatic
// retry; a timed-out command surfaces ErrCommandTimeout to the caller.
//
// # Thread Safety
//
// StateCache, Dispatcher, and Multiplexer are safe for concurrent use.
// Snapshot values handed out are copies; callers may retain them freely.
package oven

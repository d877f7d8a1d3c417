// Package cook drives recipe execution and owns the per-device runtime.
//
// The Executor is a per-device state machine over the states Idle,
// Running, Paused, Completed, Cancelled and Failed. It subscribes to
// the device's state change stream and issues one stage command at a
// time, advancing only when the device confirms progress. The device's
// self-reported stage index is authoritative over local timer
// bookkeeping, so a spurious "ahead" report never causes stage
// commands to be skipped and clock drift never causes command spam.
//
// The Manager assembles one runtime per discovered oven (state cache,
// command dispatcher, executor) and exposes the service surface used by
// the host platform: start/stop cook, probe and unit settings, recipe
// start/cancel, and state subscriptions.
package cook

package oven

import "errors"

// Domain-specific errors for oven state and command handling.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrValidation is returned when a command or stage fails validation
	// against the device's capabilities or current state.
	ErrValidation = errors.New("oven: validation failed")

	// ErrMalformedFrame is returned when a state frame cannot be decoded.
	// The frame is dropped and the cached state is left untouched.
	ErrMalformedFrame = errors.New("oven: malformed state frame")

	// ErrCommandTimeout is returned when the cloud does not acknowledge a
	// command within the configured window.
	ErrCommandTimeout = errors.New("oven: command acknowledgement timeout")

	// ErrQueueFull is returned when a device's command queue is at capacity.
	ErrQueueFull = errors.New("oven: command queue full")

	// ErrDispatcherClosed is returned when submitting to a closed dispatcher.
	ErrDispatcherClosed = errors.New("oven: dispatcher closed")
)

package cloud

import "errors"

var (
	// ErrAuthFailed indicates the cloud rejected the account token.
	// Fatal: reconnecting with the same token will not succeed.
	ErrAuthFailed = errors.New("cloud: authentication failed")

	// ErrConnectionFailed indicates the initial connection could not be
	// established.
	ErrConnectionFailed = errors.New("cloud: connection failed")

	// ErrConnectionLost indicates the connection dropped while a command
	// was outstanding. The command's fate on the device is unknown.
	ErrConnectionLost = errors.New("cloud: connection lost")

	// ErrNotConnected indicates an operation that requires an
	// established session was attempted while disconnected.
	ErrNotConnected = errors.New("cloud: not connected")

	// ErrCommandRejected indicates the device or cloud refused a command.
	ErrCommandRejected = errors.New("cloud: command rejected")

	// ErrSessionClosed indicates the session has been shut down.
	ErrSessionClosed = errors.New("cloud: session closed")
)

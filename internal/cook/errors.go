package cook

import "errors"

var (
	// ErrRecipeActive indicates a recipe is already running on the
	// device. The active run must finish or be cancelled first.
	ErrRecipeActive = errors.New("cook: recipe already active")

	// ErrNotRunning indicates there is no active recipe run to act on.
	ErrNotRunning = errors.New("cook: no recipe running")

	// ErrDeviceNotFound indicates the device id is not on the account.
	ErrDeviceNotFound = errors.New("cook: device not found")

	// ErrHistoryDisabled indicates no history repository is configured.
	ErrHistoryDisabled = errors.New("cook: history not configured")
)

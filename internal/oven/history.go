package oven

import (
	"context"
	"time"
)

// Cook history source values.
const (
	HistorySourcePush    = "push"
	HistorySourceCommand = "command"
	HistorySourceRecipe  = "recipe"
)

// HistoryEntry is a single recorded oven state change.
//
// Each entry stores the full post-merge snapshot, giving a local audit
// trail of a cook even when the time-series database is unavailable.
type HistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// DeviceID is the unique identifier of the oven.
	DeviceID string `json:"device_id"`

	// Snapshot is the merged state at the time of the change.
	Snapshot Snapshot `json:"snapshot"`

	// Source identifies what produced the change (push, command, recipe).
	Source string `json:"source"`

	// CreatedAt is the timestamp of the change (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRepository stores and retrieves oven state change history.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	// RecordChange records one oven state change.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Unique oven identifier
	//   - snapshot: Post-merge state to persist
	//   - source: Origin of the change (push, command, recipe)
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	RecordChange(ctx context.Context, deviceID string, snapshot Snapshot, source string) error

	// GetHistory returns recent state changes for the oven, newest first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Unique oven identifier
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []HistoryEntry: Ordered newest-first entries (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	GetHistory(ctx context.Context, deviceID string, limit int) ([]HistoryEntry, error)
}

// HistoryPruner deletes history entries older than a retention window.
type HistoryPruner interface {
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneLogger is the logging surface the prune loop needs.
type pruneLogger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// pruneTimeout bounds each pruning pass.
const pruneTimeout = 30 * time.Second

// PruneHistoryLoop deletes history entries older than retention, once at
// startup and then on every interval tick, until ctx is cancelled.
// Intended to run in its own goroutine.
func PruneHistoryLoop(ctx context.Context, pruner HistoryPruner, retention, interval time.Duration, logger pruneLogger) {
	if retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pruneHistoryOnce(ctx, pruner, retention, logger)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func pruneHistoryOnce(ctx context.Context, pruner HistoryPruner, retention time.Duration, logger pruneLogger) {
	pruneCtx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	deleted, err := pruner.PruneHistory(pruneCtx, retention)
	if err != nil {
		logger.Error("pruning cook history", "error", err)
		return
	}
	if deleted > 0 {
		logger.Info("cook history pruned",
			"deleted", deleted,
			"retention", retention,
		)
	}
}

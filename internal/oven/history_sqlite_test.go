package oven

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func newTestHistoryDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `CREATE TABLE cook_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		state TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'push',
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	) STRICT`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return db
}

func TestSQLiteHistoryRepository_RecordAndGet(t *testing.T) {
	db := newTestHistoryDB(t)
	repo := NewSQLiteHistoryRepository(db)
	ctx := context.Background()

	snapshots := []Snapshot{
		{DeviceID: "oven-1", Mode: "idle"},
		{DeviceID: "oven-1", Mode: "cook", TargetCelsius: 200},
		{DeviceID: "oven-1", Mode: "cook", TargetCelsius: 200, CurrentCelsius: 150},
	}
	for _, snap := range snapshots {
		if err := repo.RecordChange(ctx, "oven-1", snap, HistorySourcePush); err != nil {
			t.Fatalf("RecordChange() error = %v", err)
		}
	}
	if err := repo.RecordChange(ctx, "oven-2", Snapshot{DeviceID: "oven-2"}, HistorySourceCommand); err != nil {
		t.Fatalf("RecordChange(oven-2) error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "oven-1", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("GetHistory() returned %d entries, want 3", len(entries))
	}

	// Newest first: same-second inserts fall back to id ordering.
	if entries[0].Snapshot.CurrentCelsius != 150 {
		t.Errorf("newest entry CurrentCelsius = %v, want 150", entries[0].Snapshot.CurrentCelsius)
	}
	if entries[2].Snapshot.Mode != "idle" {
		t.Errorf("oldest entry Mode = %q, want idle", entries[2].Snapshot.Mode)
	}
	if entries[0].Source != HistorySourcePush {
		t.Errorf("Source = %q, want push", entries[0].Source)
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not parsed")
	}
}

func TestSQLiteHistoryRepository_GetHistory_Limit(t *testing.T) {
	db := newTestHistoryDB(t)
	repo := NewSQLiteHistoryRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		snap := Snapshot{DeviceID: "oven-1", FanSpeed: i}
		if err := repo.RecordChange(ctx, "oven-1", snap, HistorySourcePush); err != nil {
			t.Fatalf("RecordChange() error = %v", err)
		}
	}

	entries, err := repo.GetHistory(ctx, "oven-1", 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("GetHistory(limit=2) returned %d entries", len(entries))
	}
	if entries[0].Snapshot.FanSpeed != 4 {
		t.Errorf("newest FanSpeed = %d, want 4", entries[0].Snapshot.FanSpeed)
	}

	// Zero limit falls back to the default.
	entries, err = repo.GetHistory(ctx, "oven-1", 0)
	if err != nil {
		t.Fatalf("GetHistory(limit=0) error = %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("GetHistory(limit=0) returned %d entries, want 5", len(entries))
	}
}

func TestSQLiteHistoryRepository_Validation(t *testing.T) {
	db := newTestHistoryDB(t)
	repo := NewSQLiteHistoryRepository(db)
	ctx := context.Background()

	if err := repo.RecordChange(ctx, "", Snapshot{}, HistorySourcePush); err == nil {
		t.Error("RecordChange() with empty device id should fail")
	}
	if _, err := repo.GetHistory(ctx, "", 10); err == nil {
		t.Error("GetHistory() with empty device id should fail")
	}
	if _, err := repo.PruneHistory(ctx, 0); err == nil {
		t.Error("PruneHistory() with zero duration should fail")
	}
}

func TestSQLiteHistoryRepository_DefaultSource(t *testing.T) {
	db := newTestHistoryDB(t)
	repo := NewSQLiteHistoryRepository(db)
	ctx := context.Background()

	if err := repo.RecordChange(ctx, "oven-1", Snapshot{DeviceID: "oven-1"}, ""); err != nil {
		t.Fatalf("RecordChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "oven-1", 1)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if entries[0].Source != HistorySourcePush {
		t.Errorf("Source = %q, want push default", entries[0].Source)
	}
}

func TestSQLiteHistoryRepository_Prune(t *testing.T) {
	db := newTestHistoryDB(t)
	repo := NewSQLiteHistoryRepository(db)
	ctx := context.Background()

	// Backdate one entry beyond the retention window.
	_, err := db.Exec(
		"INSERT INTO cook_history (device_id, state, source, created_at) VALUES (?, ?, ?, ?)",
		"oven-1", "{}", HistorySourcePush, "2020-01-01T00:00:00Z",
	)
	if err != nil {
		t.Fatalf("inserting backdated row: %v", err)
	}
	if err := repo.RecordChange(ctx, "oven-1", Snapshot{DeviceID: "oven-1"}, HistorySourcePush); err != nil {
		t.Fatalf("RecordChange() error = %v", err)
	}

	deleted, err := repo.PruneHistory(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("PruneHistory() deleted %d rows, want 1", deleted)
	}

	entries, err := repo.GetHistory(ctx, "oven-1", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("%d entries remain, want 1", len(entries))
	}
}

// fakePruner counts prune passes and remembers the last window.
type fakePruner struct {
	mu        sync.Mutex
	calls     int
	retention time.Duration
}

func (f *fakePruner) PruneHistory(_ context.Context, olderThan time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.retention = olderThan
	return 1, nil
}

func (f *fakePruner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakePruner) lastRetention() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retention
}

type quietLogger struct{}

func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

func TestPruneHistoryLoop(t *testing.T) {
	pruner := &fakePruner{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		PruneHistoryLoop(ctx, pruner, 24*time.Hour, 10*time.Millisecond, quietLogger{})
		close(done)
	}()

	// One pass at startup plus at least one tick.
	deadline := time.Now().Add(5 * time.Second)
	for pruner.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("prune loop never ticked")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("prune loop did not stop on cancel")
	}
	if got := pruner.lastRetention(); got != 24*time.Hour {
		t.Errorf("retention = %v, want 24h", got)
	}
}

func TestPruneHistoryLoop_RetentionDisabled(t *testing.T) {
	pruner := &fakePruner{}
	PruneHistoryLoop(context.Background(), pruner, 0, time.Millisecond, quietLogger{})
	if got := pruner.count(); got != 0 {
		t.Errorf("prune ran %d times with retention disabled, want 0", got)
	}
}

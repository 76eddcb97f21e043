package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

func TestSnapshotLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ss := NewSnapshotStore(db)

	sn, err := ss.Create(ctx, "ledger-1.db.enc", "snapshots/ledger-1.db.enc")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sn.Status != model.SnapshotPending {
		t.Errorf("status = %q, want pending", sn.Status)
	}

	if err := ss.UpdateStatus(ctx, sn.ID, model.SnapshotUploading, ""); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := ss.UpdateCompleted(ctx, sn.ID, 4096); err != nil {
		t.Fatalf("update completed: %v", err)
	}

	got, err := ss.GetByID(ctx, sn.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.SnapshotCompleted || got.SizeBytes != 4096 || got.CompletedAt == nil {
		t.Errorf("snapshot = %+v", got)
	}

	latest, err := ss.LatestCompleted(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.ID != sn.ID {
		t.Errorf("latest = %+v, want id %d", latest, sn.ID)
	}
}

func TestSnapshotDeleteOlderThan(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ss := NewSnapshotStore(db)

	ss.Create(ctx, "a", "snapshots/a")
	ss.Create(ctx, "b", "snapshots/b")

	keys, err := ss.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("delete older: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("len(keys) = %d, want 2", len(keys))
	}
	list, _ := ss.List(ctx, 10)
	if len(list) != 0 {
		t.Errorf("len(list) = %d, want 0", len(list))
	}
}

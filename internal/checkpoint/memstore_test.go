package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/propfolio/vacate/model"
)

func testCheckpoint(subjectID, tenantID, stageKey string) model.Checkpoint {
	return model.Checkpoint{
		SubjectID: subjectID,
		TenantID:  tenantID,
		StageKey:  stageKey,
		State: model.TerminationState{
			SubjectID: subjectID,
			Reason:    "lease_end",
		},
		Status: model.CheckpointStatusActive,
	}
}

// --- Save ---

func TestMemoryStore_Save_create(t *testing.T) {
	store := NewMemoryStore()
	cp := testCheckpoint("lease-1", "tenant-1", "details")

	saved, err := store.Save(context.Background(), cp)
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if saved.Version != 1 {
		t.Errorf("Version = %d, want 1", saved.Version)
	}
	if saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Error("timestamps should be set on create")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestMemoryStore_Save_update(t *testing.T) {
	store := NewMemoryStore()
	saved, _ := store.Save(context.Background(), testCheckpoint("lease-1", "tenant-1", "details"))

	saved.StageKey = "media"
	saved.State.Notes = "keys returned"
	updated, err := store.Save(context.Background(), saved)
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}
	if !updated.CreatedAt.Equal(saved.CreatedAt) {
		t.Error("CreatedAt should be preserved across updates")
	}

	got, _ := store.Load(context.Background(), "tenant-1", "lease-1")
	if got.StageKey != "media" {
		t.Errorf("StageKey = %q, want media", got.StageKey)
	}
	if got.State.Notes != "keys returned" {
		t.Errorf("State.Notes = %q", got.State.Notes)
	}
}

func TestMemoryStore_Save_versionConflict(t *testing.T) {
	store := NewMemoryStore()
	saved, _ := store.Save(context.Background(), testCheckpoint("lease-1", "tenant-1", "details"))

	// First update succeeds.
	first := saved
	first.StageKey = "media"
	if _, err := store.Save(context.Background(), first); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	// Second update with the stale version should fail.
	stale := saved
	stale.StageKey = "damages"
	_, err := store.Save(context.Background(), stale)
	if err == nil {
		t.Fatal("expected version conflict error")
	}
	envErr, ok := err.(*model.ErrorEnvelope)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if envErr.Code != model.ErrConflict {
		t.Errorf("code = %s, want %s", envErr.Code, model.ErrConflict)
	}
}

func TestMemoryStore_Save_staleVersionOnMissing(t *testing.T) {
	store := NewMemoryStore()
	cp := testCheckpoint("lease-1", "tenant-1", "details")
	cp.Version = 3

	_, err := store.Save(context.Background(), cp)
	if err == nil {
		t.Fatal("expected conflict error for nonexistent checkpoint with nonzero version")
	}
}

func TestMemoryStore_Save_isolatesStoredState(t *testing.T) {
	store := NewMemoryStore()
	cp := testCheckpoint("lease-1", "tenant-1", "media")
	cp.State.Media = []model.MediaAsset{{URL: "https://cdn.example/1.jpg", Kind: model.MediaKindPhoto}}

	saved, _ := store.Save(context.Background(), cp)

	// Mutating the caller's copy must not leak into the store.
	saved.State.Media[0].URL = "https://cdn.example/tampered.jpg"

	got, _ := store.Load(context.Background(), "tenant-1", "lease-1")
	if got.State.Media[0].URL != "https://cdn.example/1.jpg" {
		t.Errorf("stored media URL = %q, caller mutation leaked", got.State.Media[0].URL)
	}
}

// --- Load ---

func TestMemoryStore_Load_notFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Load(context.Background(), "tenant-1", "nonexistent")
	if err == nil {
		t.Fatal("expected not found error")
	}
	envErr, ok := err.(*model.ErrorEnvelope)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if envErr.Code != model.ErrNotFound {
		t.Errorf("code = %s, want %s", envErr.Code, model.ErrNotFound)
	}
}

func TestMemoryStore_Load_tenantIsolation(t *testing.T) {
	store := NewMemoryStore()
	_, _ = store.Save(context.Background(), testCheckpoint("lease-1", "tenant-1", "details"))

	// Different tenant should not see it.
	_, err := store.Load(context.Background(), "tenant-2", "lease-1")
	if err == nil {
		t.Fatal("expected not found error (tenant isolation)")
	}
}

// --- Delete ---

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	_, _ = store.Save(context.Background(), testCheckpoint("lease-1", "tenant-1", "details"))
	_ = store.AppendEvent(context.Background(), model.TerminationEvent{
		ID: "evt-1", SubjectID: "lease-1", TenantID: "tenant-1",
		StageKey: "details", Event: "stage_saved", ActorID: "user-alice",
		Timestamp: time.Now(),
	})

	if err := store.Delete(context.Background(), "tenant-1", "lease-1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}

	// Events should also be cleaned up.
	events, _ := store.GetEvents(context.Background(), "tenant-1", "lease-1")
	if len(events) != 0 {
		t.Errorf("len(events) = %d after delete, want 0", len(events))
	}
}

func TestMemoryStore_Delete_notFound(t *testing.T) {
	store := NewMemoryStore()

	if err := store.Delete(context.Background(), "tenant-1", "nonexistent"); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestMemoryStore_Delete_tenantIsolation(t *testing.T) {
	store := NewMemoryStore()
	_, _ = store.Save(context.Background(), testCheckpoint("lease-1", "tenant-1", "details"))

	if err := store.Delete(context.Background(), "tenant-2", "lease-1"); err == nil {
		t.Fatal("expected not found error (tenant isolation)")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

// --- FindActive ---

func TestMemoryStore_FindActive(t *testing.T) {
	store := NewMemoryStore()

	cp1, _ := store.Save(context.Background(), testCheckpoint("lease-1", "tenant-1", "details"))
	time.Sleep(time.Millisecond)
	_, _ = store.Save(context.Background(), testCheckpoint("lease-2", "tenant-1", "media"))
	time.Sleep(time.Millisecond)

	abandoned := testCheckpoint("lease-3", "tenant-1", "details")
	abandoned.Status = model.CheckpointStatusAbandoned // Not active.
	_, _ = store.Save(context.Background(), abandoned)

	_, _ = store.Save(context.Background(), testCheckpoint("lease-4", "tenant-2", "details")) // Different tenant.

	result, err := store.FindActive(context.Background(), "tenant-1", Filters{})
	if err != nil {
		t.Fatalf("FindActive error: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("len(result) = %d, want 2 (active only, same tenant)", len(result))
	}
	// Sorted by updated_at descending.
	if result[0].SubjectID != "lease-2" {
		t.Errorf("result[0].SubjectID = %q, want lease-2 (most recent)", result[0].SubjectID)
	}

	// Touch lease-1 and the order should flip.
	cp1.StageKey = "damages"
	_, _ = store.Save(context.Background(), cp1)
	result, _ = store.FindActive(context.Background(), "tenant-1", Filters{})
	if result[0].SubjectID != "lease-1" {
		t.Errorf("result[0].SubjectID = %q, want lease-1 after update", result[0].SubjectID)
	}
}

func TestMemoryStore_FindActive_stageFilter(t *testing.T) {
	store := NewMemoryStore()
	_, _ = store.Save(context.Background(), testCheckpoint("lease-1", "tenant-1", "details"))
	_, _ = store.Save(context.Background(), testCheckpoint("lease-2", "tenant-1", "damages"))

	result, err := store.FindActive(context.Background(), "tenant-1", Filters{StageKey: "damages"})
	if err != nil {
		t.Fatalf("FindActive error: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("len(result) = %d, want 1", len(result))
	}
	if result[0].SubjectID != "lease-2" {
		t.Errorf("SubjectID = %q", result[0].SubjectID)
	}
}

func TestMemoryStore_FindActive_pagination(t *testing.T) {
	store := NewMemoryStore()
	for i := 0; i < 5; i++ {
		_, _ = store.Save(context.Background(), testCheckpoint(
			"lease-"+string(rune('a'+i)), "tenant-1", "details",
		))
		time.Sleep(time.Millisecond)
	}

	result, err := store.FindActive(context.Background(), "tenant-1", Filters{Limit: 2})
	if err != nil {
		t.Fatalf("FindActive error: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("len(result) = %d, want 2 (limit)", len(result))
	}

	result, _ = store.FindActive(context.Background(), "tenant-1", Filters{Offset: 3})
	if len(result) != 2 {
		t.Errorf("len(result) = %d, want 2 (offset 3 of 5)", len(result))
	}

	result, _ = store.FindActive(context.Background(), "tenant-1", Filters{Offset: 10})
	if len(result) != 0 {
		t.Errorf("len(result) = %d, want 0 (offset past end)", len(result))
	}
}

// --- Events ---

func TestMemoryStore_AppendAndGetEvents(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().UTC()

	events := []model.TerminationEvent{
		{ID: "evt-1", SubjectID: "lease-1", TenantID: "tenant-1", StageKey: "details", Event: "stage_saved", ActorID: "user-alice", Timestamp: now},
		{ID: "evt-2", SubjectID: "lease-1", TenantID: "tenant-1", StageKey: "media", Event: "advanced", ActorID: "user-alice", Timestamp: now.Add(time.Minute)},
	}
	for _, evt := range events {
		if err := store.AppendEvent(context.Background(), evt); err != nil {
			t.Fatalf("AppendEvent error: %v", err)
		}
	}

	got, err := store.GetEvents(context.Background(), "tenant-1", "lease-1")
	if err != nil {
		t.Fatalf("GetEvents error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(got))
	}
	if got[0].Event != "stage_saved" {
		t.Errorf("events[0].Event = %q", got[0].Event)
	}
	if got[1].StageKey != "media" {
		t.Errorf("events[1].StageKey = %q", got[1].StageKey)
	}
}

func TestMemoryStore_GetEvents_sortedByTimestamp(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().UTC()

	// Insert in reverse order.
	_ = store.AppendEvent(context.Background(), model.TerminationEvent{
		ID: "evt-2", SubjectID: "lease-1", TenantID: "tenant-1", Event: "second", ActorID: "system", Timestamp: now.Add(time.Minute),
	})
	_ = store.AppendEvent(context.Background(), model.TerminationEvent{
		ID: "evt-1", SubjectID: "lease-1", TenantID: "tenant-1", Event: "first", ActorID: "system", Timestamp: now,
	})

	got, _ := store.GetEvents(context.Background(), "tenant-1", "lease-1")
	if got[0].Event != "first" {
		t.Error("events should be sorted by timestamp ascending")
	}
}

func TestMemoryStore_GetEvents_tenantIsolation(t *testing.T) {
	store := NewMemoryStore()
	_ = store.AppendEvent(context.Background(), model.TerminationEvent{
		ID: "evt-1", SubjectID: "lease-1", TenantID: "tenant-1", Event: "stage_saved", ActorID: "system", Timestamp: time.Now(),
	})

	got, _ := store.GetEvents(context.Background(), "tenant-2", "lease-1")
	if len(got) != 0 {
		t.Errorf("len(events) = %d for other tenant, want 0", len(got))
	}
}

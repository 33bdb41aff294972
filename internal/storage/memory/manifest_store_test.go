package memory

import (
	"context"
	"errors"
	"testing"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

func testEntry(hash, lineage string) *domain.ManifestEntry {
	return &domain.ManifestEntry{
		ParamHash:    hash,
		LineageHash:  lineage,
		Version:      1,
		Spec:         &domain.CandidateSpec{ParamHash: hash, Instrument: "ES"},
		Status:       domain.ManifestApproved,
		ApprovedAtMs: 1704067200000,
		SyncFlags:    map[string]bool{"trading": false, "docs": false},
	}
}

func TestManifestStore_InsertDuplicate(t *testing.T) {
	store := NewManifestStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testEntry("h1", "l1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	err := store.Insert(ctx, testEntry("h1", "l1"))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestManifestStore_MarkSyncedDoesNotLeak(t *testing.T) {
	store := NewManifestStore()
	ctx := context.Background()

	e := testEntry("h1", "l1")
	_ = store.Insert(ctx, e)

	// Mutating the caller's copy must not affect the store
	e.SyncFlags["trading"] = true

	got, _ := store.GetByParamHash(ctx, "h1")
	if got.SyncFlags["trading"] {
		t.Fatal("store shares sync map with caller")
	}

	updated, err := store.MarkSynced(ctx, "h1", "trading")
	if err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	if !updated.SyncFlags["trading"] || updated.SyncFlags["docs"] {
		t.Errorf("unexpected flags: %v", updated.SyncFlags)
	}

	if _, err := store.MarkSynced(ctx, "missing", "trading"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManifestStore_CountByLineage(t *testing.T) {
	store := NewManifestStore()
	ctx := context.Background()

	_ = store.Insert(ctx, testEntry("h1", "l1"))
	_ = store.Insert(ctx, testEntry("h2", "l1"))
	_ = store.Insert(ctx, testEntry("h3", "l2"))

	n, err := store.CountByLineage(ctx, "l1")
	if err != nil {
		t.Fatalf("CountByLineage failed: %v", err)
	}
	if n != 2 {
		t.Errorf("CountByLineage = %d, want 2", n)
	}
}

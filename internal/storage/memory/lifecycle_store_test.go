package memory

import (
	"context"
	"errors"
	"testing"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

func TestLifecycleStore_AppendAndHistory(t *testing.T) {
	store := NewLifecycleStore()
	ctx := context.Background()

	steps := []domain.Stage{domain.StageGenerated, domain.StageTesting, domain.StageSurvivor}
	var from domain.Stage
	for i, to := range steps {
		err := store.Append(ctx, &domain.Transition{CandidateID: "c1", Seq: i, From: from, To: to, AtMs: int64(i)})
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
		from = to
	}

	history, err := store.History(ctx, "c1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(history))
	}
	if got := domain.CurrentStage(history); got != domain.StageSurvivor {
		t.Errorf("CurrentStage = %s, want SURVIVOR", got)
	}
}

func TestLifecycleStore_SeqConflict(t *testing.T) {
	store := NewLifecycleStore()
	ctx := context.Background()

	first := &domain.Transition{CandidateID: "c1", Seq: 0, To: domain.StageGenerated}
	if err := store.Append(ctx, first); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Same position again
	err := store.Append(ctx, &domain.Transition{CandidateID: "c1", Seq: 0, To: domain.StageGenerated})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	// Gap
	err = store.Append(ctx, &domain.Transition{CandidateID: "c1", Seq: 2, From: domain.StageTesting, To: domain.StageFailed})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict for gap, got %v", err)
	}
}

func TestLifecycleStore_ListAndCountByStage(t *testing.T) {
	store := NewLifecycleStore()
	ctx := context.Background()

	_ = store.Append(ctx, &domain.Transition{CandidateID: "b", Seq: 0, To: domain.StageGenerated})
	_ = store.Append(ctx, &domain.Transition{CandidateID: "a", Seq: 0, To: domain.StageGenerated})
	_ = store.Append(ctx, &domain.Transition{CandidateID: "c", Seq: 0, To: domain.StageGenerated})
	_ = store.Append(ctx, &domain.Transition{CandidateID: "c", Seq: 1, From: domain.StageGenerated, To: domain.StageTesting})

	gen, err := store.ListByStage(ctx, domain.StageGenerated)
	if err != nil {
		t.Fatalf("ListByStage failed: %v", err)
	}
	if len(gen) != 2 || gen[0].CandidateID != "a" || gen[1].CandidateID != "b" {
		t.Errorf("unexpected GENERATED listing: %+v", gen)
	}

	counts, _ := store.CountByStage(ctx)
	if counts[domain.StageGenerated] != 2 || counts[domain.StageTesting] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

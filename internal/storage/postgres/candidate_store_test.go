package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

func TestCandidateStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandidateStore(pool)
	ctx := context.Background()

	spec := testSpec(0)
	spec.Filters = domain.FilterSet{RangeATRMin: 0.1, RangeATRMax: 0.8}
	spec.Exit = domain.TrailingExit{TrailR: 1.25}
	spec.Risk = domain.ATRStop{Multiple: 0.5}

	require.NoError(t, store.Insert(ctx, spec))

	got, err := store.GetByID(ctx, spec.ParamHash)
	require.NoError(t, err)
	assert.Equal(t, spec, got)
	assert.Equal(t, spec.Canonical(true), got.Canonical(true))
}

func TestCandidateStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandidateStore(pool)
	ctx := context.Background()

	spec := testSpec(0)
	require.NoError(t, store.Insert(ctx, spec))
	assert.ErrorIs(t, store.Insert(ctx, spec), storage.ErrDuplicateKey)
}

func TestCandidateStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewCandidateStore(pool).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCandidateStore_ListOrdering(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandidateStore(pool)
	ctx := context.Background()

	// Inserted newest first; listed by created_at.
	for _, rev := range []int{2, 0, 1} {
		require.NoError(t, store.Insert(ctx, testSpec(rev)))
	}

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, c := range all {
		assert.Equal(t, i, c.Revision)
	}

	byInst, err := store.GetByInstrument(ctx, all[0].Instrument)
	require.NoError(t, err)
	assert.Len(t, byInst, 3)

	none, err := store.GetByInstrument(ctx, "NONE")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHashIndex_ClaimOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	idx := NewHashIndex(pool)
	ctx := context.Background()

	ok, err := idx.Claim(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = idx.Claim(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = idx.Claim(ctx, "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestHashIndex_ConcurrentClaims(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	idx := NewHashIndex(pool)
	ctx := context.Background()

	const workers = 16
	wins := make(chan bool, workers)
	errs := make(chan error, workers)
	for range workers {
		go func() {
			ok, err := idx.Claim(ctx, "contended")
			wins <- ok
			errs <- err
		}()
	}

	won := 0
	for range workers {
		require.NoError(t, <-errs)
		if <-wins {
			won++
		}
	}
	assert.Equal(t, 1, won)
}

package postgres

import (
	"context"
	"fmt"

	"edge-lab/internal/storage"
)

// HashIndex implements storage.HashIndex on the candidate_hashes table.
// The primary key makes Claim first-writer-wins across processes.
type HashIndex struct {
	pool *Pool
}

// NewHashIndex creates a new HashIndex.
func NewHashIndex(pool *Pool) *HashIndex {
	return &HashIndex{pool: pool}
}

// Compile-time interface check.
var _ storage.HashIndex = (*HashIndex)(nil)

// Claim atomically records the hash. Returns false if it was already claimed.
func (idx *HashIndex) Claim(ctx context.Context, paramHash string) (bool, error) {
	if paramHash == "" {
		return false, storage.ErrInvalidInput
	}
	tag, err := idx.pool.Exec(ctx,
		`INSERT INTO candidate_hashes (param_hash) VALUES ($1) ON CONFLICT (param_hash) DO NOTHING`,
		paramHash,
	)
	if err != nil {
		return false, fmt.Errorf("claim hash: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

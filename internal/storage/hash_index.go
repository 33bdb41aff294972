package storage

import "context"

// HashIndex is the atomic uniqueness index over candidate parameter hashes.
// Claim is first-writer-wins: of any number of concurrent claims for one hash,
// exactly one returns true.
type HashIndex interface {
	// Claim atomically records the hash. Returns false if it was already claimed.
	Claim(ctx context.Context, paramHash string) (bool, error)
}

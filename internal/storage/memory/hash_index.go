package memory

import (
	"context"
	"hash/fnv"
	"sync"

	"edge-lab/internal/storage"
)

// numShards must be a power of two.
const numShards = 64

// HashIndex is a sharded in-memory implementation of storage.HashIndex.
// Each hash maps to one shard, so concurrent claims of different hashes
// rarely contend while claims of the same hash serialize on one mutex.
type HashIndex struct {
	shards [numShards]struct {
		mu    sync.Mutex
		items map[string]struct{}
	}
}

// NewHashIndex creates a new in-memory hash index.
func NewHashIndex() *HashIndex {
	idx := &HashIndex{}
	for i := range idx.shards {
		idx.shards[i].items = make(map[string]struct{}, 64)
	}
	return idx
}

func shardOf(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() & (numShards - 1)
}

// Claim atomically records the hash. Returns false if it was already claimed.
func (idx *HashIndex) Claim(_ context.Context, paramHash string) (bool, error) {
	if paramHash == "" {
		return false, storage.ErrInvalidInput
	}

	shard := &idx.shards[shardOf(paramHash)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, ok := shard.items[paramHash]; ok {
		return false, nil
	}
	shard.items[paramHash] = struct{}{}
	return true, nil
}

// Verify interface compliance at compile time.
var _ storage.HashIndex = (*HashIndex)(nil)

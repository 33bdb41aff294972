// Package redisindex implements the candidate hash index on a Redis set, so
// generator processes on different hosts share one first-writer-wins claim.
package redisindex

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"edge-lab/internal/storage"
)

// DefaultKey is the Redis set holding claimed parameter hashes.
const DefaultKey = "edgelab:param_hashes"

// Config holds the connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string // set key; DefaultKey if empty
}

// HashIndex implements storage.HashIndex with SADD, which reports whether
// the member was new atomically on the server.
type HashIndex struct {
	client *redis.Client
	key    string
}

// Compile-time interface check.
var _ storage.HashIndex = (*HashIndex)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*HashIndex, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	return NewWithClient(client, cfg.Key), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, key string) *HashIndex {
	if key == "" {
		key = DefaultKey
	}
	return &HashIndex{client: client, key: key}
}

// Claim atomically records the hash. Returns false if it was already claimed.
func (idx *HashIndex) Claim(ctx context.Context, paramHash string) (bool, error) {
	if paramHash == "" {
		return false, storage.ErrInvalidInput
	}
	added, err := idx.client.SAdd(ctx, idx.key, paramHash).Result()
	if err != nil {
		return false, fmt.Errorf("claim hash: %w", err)
	}
	return added == 1, nil
}

// Close closes the client.
func (idx *HashIndex) Close() error {
	return idx.client.Close()
}

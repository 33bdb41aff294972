// Package backend assembles a storage.Set from configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"edge-lab/internal/config"
	"edge-lab/internal/storage"
	"edge-lab/internal/storage/clickhouse"
	"edge-lab/internal/storage/memory"
	"edge-lab/internal/storage/postgres"
	"edge-lab/internal/storage/redisindex"
	"edge-lab/internal/storage/sqlite"
)

// Stores is an opened storage set and the connections behind it.
type Stores struct {
	storage.Set
	closers []func() error
}

// Close releases every connection, newest first.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Stores) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Open connects the configured backend and applies its schema.
//
//   - memory: every store in process.
//   - postgres: record sets in PostgreSQL, bars, features and backtest
//     results in ClickHouse.
//
// With either backend, a redis address moves the hash index to Redis and a
// sqlite path moves generation runs and test audit rows to a local journal.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stores{}

	switch cfg.Backend {
	case config.BackendMemory:
		s.Set = memory.NewSet()

	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.onClose(func() error { pool.Close(); return nil })
		if err := pool.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}

		conn, err := clickhouse.Open(ctx, cfg.ClickHouseDSN)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.onClose(conn.Close)

		s.Set = storage.Set{
			Candidates: postgres.NewCandidateStore(pool),
			Index:      postgres.NewHashIndex(pool),
			Lifecycle:  postgres.NewLifecycleStore(pool),
			Outcomes:   postgres.NewOutcomeStore(pool),
			Manifest:   postgres.NewManifestStore(pool),
			Runs:       postgres.NewGenerationRunStore(pool),
			Audit:      postgres.NewTestAuditStore(pool),
			Live:       postgres.NewLiveTrackingStore(pool),
			Bars:       clickhouse.NewBarStore(conn),
			Features:   clickhouse.NewFeatureStore(conn),
			Results:    clickhouse.NewBacktestResultStore(conn),
		}

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if cfg.RedisAddr != "" {
		idx, err := redisindex.New(ctx, redisindex.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.onClose(idx.Close)
		s.Index = idx
	}

	if cfg.SQLitePath != "" {
		journal, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.onClose(journal.Close)
		s.Runs = journal
		s.Audit = journal
	}

	logger.Info("storage opened",
		"backend", cfg.Backend,
		"redis_index", cfg.RedisAddr != "",
		"sqlite_journal", cfg.SQLitePath,
	)
	return s, nil
}

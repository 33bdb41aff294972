package postgres

import (
	"context"
	"fmt"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// GenerationRunStore implements storage.GenerationRunStore using PostgreSQL.
type GenerationRunStore struct {
	pool *Pool
}

// NewGenerationRunStore creates a new GenerationRunStore.
func NewGenerationRunStore(pool *Pool) *GenerationRunStore {
	return &GenerationRunStore{pool: pool}
}

var _ storage.GenerationRunStore = (*GenerationRunStore)(nil)

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *GenerationRunStore) Insert(ctx context.Context, r *domain.GenerationRun) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}
	instruments := r.Instruments
	if instruments == nil {
		instruments = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO generation_runs (
			run_id, at_ms, mode, instruments, requested, generated, accepted, duplicates
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.RunID, r.AtMs, r.Mode, instruments, r.Requested, r.Generated, r.Accepted, r.Duplicates)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert generation run: %w", err)
	}
	return nil
}

// List retrieves all runs ordered by at_ms ASC.
func (s *GenerationRunStore) List(ctx context.Context) ([]*domain.GenerationRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, at_ms, mode, instruments, requested, generated, accepted, duplicates
		FROM generation_runs
		ORDER BY at_ms ASC, run_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list generation runs: %w", err)
	}
	defer rows.Close()

	var result []*domain.GenerationRun
	for rows.Next() {
		var r domain.GenerationRun
		if err := rows.Scan(&r.RunID, &r.AtMs, &r.Mode, &r.Instruments,
			&r.Requested, &r.Generated, &r.Accepted, &r.Duplicates); err != nil {
			return nil, fmt.Errorf("scan generation run: %w", err)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

// TestAuditStore implements storage.TestAuditStore using PostgreSQL.
type TestAuditStore struct {
	pool *Pool
}

// NewTestAuditStore creates a new TestAuditStore.
func NewTestAuditStore(pool *Pool) *TestAuditStore {
	return &TestAuditStore{pool: pool}
}

var _ storage.TestAuditStore = (*TestAuditStore)(nil)

// InsertBulk adds multiple rows atomically. Fails entire batch on any duplicate.
func (s *TestAuditStore) InsertBulk(ctx context.Context, rows []*domain.TestAuditRow) error {
	if len(rows) == 0 {
		return nil
	}
	for _, r := range rows {
		if r == nil || r.CandidateID == "" || r.TestID == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO test_audit (
			run_id, candidate_id, category, test_id, severity, pass,
			trade_count, avg_r, total_r, max_drawdown_r, detail, created_at_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for _, r := range rows {
		_, err := tx.Exec(ctx, query,
			r.RunID, r.CandidateID, r.Category, r.TestID, r.Severity, r.Pass,
			r.TradeCount, r.AvgR, r.TotalR, r.MaxDrawdownR, r.Detail, r.CreatedAtMs,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert test audit in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByCandidateID retrieves rows of a candidate ordered by (created_at, test_id) ASC.
func (s *TestAuditStore) GetByCandidateID(ctx context.Context, candidateID string) ([]*domain.TestAuditRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, candidate_id, category, test_id, severity, pass,
			trade_count, avg_r, total_r, max_drawdown_r, detail, created_at_ms
		FROM test_audit
		WHERE candidate_id = $1
		ORDER BY created_at_ms ASC, test_id ASC
	`, candidateID)
	if err != nil {
		return nil, fmt.Errorf("get test audit by candidate id: %w", err)
	}
	defer rows.Close()

	var result []*domain.TestAuditRow
	for rows.Next() {
		var r domain.TestAuditRow
		if err := rows.Scan(&r.RunID, &r.CandidateID, &r.Category, &r.TestID, &r.Severity, &r.Pass,
			&r.TradeCount, &r.AvgR, &r.TotalR, &r.MaxDrawdownR, &r.Detail, &r.CreatedAtMs); err != nil {
			return nil, fmt.Errorf("scan test audit: %w", err)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

// LiveTrackingStore implements storage.LiveTrackingStore using PostgreSQL.
type LiveTrackingStore struct {
	pool *Pool
}

// NewLiveTrackingStore creates a new LiveTrackingStore.
func NewLiveTrackingStore(pool *Pool) *LiveTrackingStore {
	return &LiveTrackingStore{pool: pool}
}

var _ storage.LiveTrackingStore = (*LiveTrackingStore)(nil)

// Insert adds a placeholder. Returns ErrDuplicateKey if param_hash exists.
func (s *LiveTrackingStore) Insert(ctx context.Context, r *domain.LiveTrackingRecord) error {
	if r == nil || r.ParamHash == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO live_tracking (param_hash, edge_code, instrument, activated_ms, status)
		VALUES ($1, $2, $3, $4, $5)
	`, r.ParamHash, r.EdgeCode, r.Instrument, r.ActivatedMs, r.Status)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert live tracking: %w", err)
	}
	return nil
}

// List retrieves all placeholders ordered by activated_ms ASC.
func (s *LiveTrackingStore) List(ctx context.Context) ([]*domain.LiveTrackingRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT param_hash, edge_code, instrument, activated_ms, status
		FROM live_tracking
		ORDER BY activated_ms ASC, param_hash ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list live tracking: %w", err)
	}
	defer rows.Close()

	var result []*domain.LiveTrackingRecord
	for rows.Next() {
		var r domain.LiveTrackingRecord
		if err := rows.Scan(&r.ParamHash, &r.EdgeCode, &r.Instrument, &r.ActivatedMs, &r.Status); err != nil {
			return nil, fmt.Errorf("scan live tracking: %w", err)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

package storage

import (
	"context"

	"edge-lab/internal/domain"
)

// CandidateStore provides access to candidates storage.
type CandidateStore interface {
	// Insert adds a new candidate. Returns ErrDuplicateKey if param_hash exists.
	Insert(ctx context.Context, c *domain.CandidateSpec) error

	// GetByID retrieves a candidate by its param hash. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, paramHash string) (*domain.CandidateSpec, error)

	// GetByInstrument retrieves all candidates for an instrument, ordered by created_at ASC.
	GetByInstrument(ctx context.Context, instrument string) ([]*domain.CandidateSpec, error)

	// List retrieves all candidates, ordered by (created_at, param_hash) ASC.
	List(ctx context.Context) ([]*domain.CandidateSpec, error)
}

// LifecycleStore is the append-only transition log.
type LifecycleStore interface {
	// Append adds t at position t.Seq. Returns ErrConflict if that position
	// is already taken for the candidate.
	Append(ctx context.Context, t *domain.Transition) error

	// History retrieves a candidate's transitions ordered by seq ASC.
	// Returns an empty slice for unknown candidates.
	History(ctx context.Context, candidateID string) ([]*domain.Transition, error)

	// ListByStage retrieves the last transition of every candidate currently at stage,
	// ordered by candidate_id ASC.
	ListByStage(ctx context.Context, stage domain.Stage) ([]*domain.Transition, error)

	// CountByStage returns the number of candidates whose latest transition is at each stage.
	CountByStage(ctx context.Context) (map[domain.Stage]int, error)
}

// OutcomeStore provides access to validation_outcomes storage.
type OutcomeStore interface {
	// Insert adds a new outcome. Returns ErrDuplicateKey if outcome_id exists.
	Insert(ctx context.Context, o *domain.ValidationOutcome) error

	// GetByID retrieves an outcome. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, outcomeID string) (*domain.ValidationOutcome, error)

	// GetByCandidateID retrieves all outcomes of a candidate, ordered by created_at ASC.
	GetByCandidateID(ctx context.Context, candidateID string) ([]*domain.ValidationOutcome, error)
}

// ManifestStore provides access to the edge_manifest.
type ManifestStore interface {
	// Insert adds a new entry. Returns ErrDuplicateKey if param_hash exists.
	Insert(ctx context.Context, e *domain.ManifestEntry) error

	// GetByParamHash retrieves an entry. Returns ErrNotFound if not exists.
	GetByParamHash(ctx context.Context, paramHash string) (*domain.ManifestEntry, error)

	// List retrieves all entries ordered by (approved_at, param_hash) ASC.
	List(ctx context.Context) ([]*domain.ManifestEntry, error)

	// CountByLineage returns the number of entries sharing a lineage hash.
	CountByLineage(ctx context.Context, lineageHash string) (int, error)

	// MarkSynced sets a consumer's sync flag and returns the updated entry.
	// Returns ErrNotFound if not exists.
	MarkSynced(ctx context.Context, paramHash, consumer string) (*domain.ManifestEntry, error)

	// SetStatus updates the downstream status. Rule fields are never modified.
	SetStatus(ctx context.Context, paramHash string, status domain.ManifestStatus) error
}

// GenerationRunStore provides access to the generation audit log.
type GenerationRunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.GenerationRun) error

	// List retrieves all runs ordered by at_ms ASC.
	List(ctx context.Context) ([]*domain.GenerationRun, error)
}

// TestAuditStore provides access to the attack/test audit log.
type TestAuditStore interface {
	// InsertBulk adds multiple rows. Fails entire batch on duplicate (run_id, candidate_id, test_id).
	InsertBulk(ctx context.Context, rows []*domain.TestAuditRow) error

	// GetByCandidateID retrieves rows of a candidate ordered by (created_at, test_id) ASC.
	GetByCandidateID(ctx context.Context, candidateID string) ([]*domain.TestAuditRow, error)
}

// LiveTrackingStore holds placeholders for the external monitoring component.
type LiveTrackingStore interface {
	// Insert adds a placeholder. Returns ErrDuplicateKey if param_hash exists.
	Insert(ctx context.Context, r *domain.LiveTrackingRecord) error

	// List retrieves all placeholders ordered by activated_ms ASC.
	List(ctx context.Context) ([]*domain.LiveTrackingRecord, error)
}

// BarStore provides read access to minute bars.
type BarStore interface {
	// InsertBulk adds multiple bars. Fails entire batch on duplicate (instrument, timestamp_ms).
	InsertBulk(ctx context.Context, bars []*domain.Bar) error

	// GetByTimeRange retrieves bars within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, instrument string, start, end int64) ([]*domain.Bar, error)
}

// FeatureStore provides access to precomputed session features.
type FeatureStore interface {
	// InsertBulk adds multiple rows. Fails entire batch on duplicate (instrument, window_key, session_date).
	InsertBulk(ctx context.Context, features []*domain.SessionFeatures) error

	// GetByWindow retrieves features for [startDate, endDate] (inclusive, YYYY-MM-DD),
	// ordered by session_date ASC.
	GetByWindow(ctx context.Context, instrument, windowKey, startDate, endDate string) ([]*domain.SessionFeatures, error)
}

// BacktestResultStore provides access to per-scenario backtest_results.
type BacktestResultStore interface {
	// InsertBulk adds multiple results. Fails entire batch on duplicate (run_id, candidate_id, scenario_id).
	InsertBulk(ctx context.Context, results []*domain.BacktestResult) error

	// GetByCandidateID retrieves results ordered by (run_id, scenario_id) ASC.
	GetByCandidateID(ctx context.Context, candidateID string) ([]*domain.BacktestResult, error)
}

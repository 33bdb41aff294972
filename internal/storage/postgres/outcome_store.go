package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// OutcomeStore implements storage.OutcomeStore using PostgreSQL.
// Gates, components and the baseline aggregate are JSONB.
type OutcomeStore struct {
	pool *Pool
}

// NewOutcomeStore creates a new OutcomeStore.
func NewOutcomeStore(pool *Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OutcomeStore = (*OutcomeStore)(nil)

const outcomeColumns = `
	outcome_id, candidate_id, run_id, gates, passed, survival_score, tier,
	failure_reasons, components, baseline, created_at_ms`

// Insert adds a new outcome. Returns ErrDuplicateKey if outcome_id exists.
func (s *OutcomeStore) Insert(ctx context.Context, o *domain.ValidationOutcome) error {
	if o == nil || o.OutcomeID == "" || o.CandidateID == "" {
		return storage.ErrInvalidInput
	}

	gates := o.Gates
	if gates == nil {
		gates = []domain.GateResult{}
	}
	reasons := o.FailureReasons
	if reasons == nil {
		reasons = []string{}
	}

	query := `
		INSERT INTO validation_outcomes (` + outcomeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		o.OutcomeID, o.CandidateID, o.RunID, gates, o.Passed, o.SurvivalScore, string(o.Tier),
		reasons, o.Components, o.Baseline, o.CreatedAtMs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// GetByID retrieves an outcome. Returns ErrNotFound if not exists.
func (s *OutcomeStore) GetByID(ctx context.Context, outcomeID string) (*domain.ValidationOutcome, error) {
	query := `SELECT ` + outcomeColumns + ` FROM validation_outcomes WHERE outcome_id = $1`

	o, err := scanOutcome(s.pool.QueryRow(ctx, query, outcomeID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get outcome by id: %w", err)
	}
	return o, nil
}

// GetByCandidateID retrieves all outcomes of a candidate, ordered by created_at ASC.
func (s *OutcomeStore) GetByCandidateID(ctx context.Context, candidateID string) ([]*domain.ValidationOutcome, error) {
	query := `
		SELECT ` + outcomeColumns + `
		FROM validation_outcomes
		WHERE candidate_id = $1
		ORDER BY created_at_ms ASC, outcome_id ASC
	`

	rows, err := s.pool.Query(ctx, query, candidateID)
	if err != nil {
		return nil, fmt.Errorf("get outcomes by candidate id: %w", err)
	}
	defer rows.Close()

	var result []*domain.ValidationOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return result, nil
}

func scanOutcome(row pgx.Row) (*domain.ValidationOutcome, error) {
	var o domain.ValidationOutcome
	var tier string
	err := row.Scan(
		&o.OutcomeID, &o.CandidateID, &o.RunID, &o.Gates, &o.Passed, &o.SurvivalScore, &tier,
		&o.FailureReasons, &o.Components, &o.Baseline, &o.CreatedAtMs,
	)
	if err != nil {
		return nil, err
	}
	o.Tier = domain.ConfidenceTier(tier)
	if len(o.FailureReasons) == 0 {
		o.FailureReasons = nil
	}
	return &o, nil
}

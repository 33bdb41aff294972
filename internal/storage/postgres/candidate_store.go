package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// CandidateStore implements storage.CandidateStore using PostgreSQL.
// Rules are stored as the JSONB RuleSetDoc.
type CandidateStore struct {
	pool *Pool
}

// NewCandidateStore creates a new CandidateStore.
func NewCandidateStore(pool *Pool) *CandidateStore {
	return &CandidateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CandidateStore = (*CandidateStore)(nil)

const candidateColumns = `param_hash, instrument, revision, rules, created_at_ms`

// Insert adds a new candidate. Returns ErrDuplicateKey if param_hash exists.
func (s *CandidateStore) Insert(ctx context.Context, c *domain.CandidateSpec) error {
	if c == nil || c.ParamHash == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO candidates (` + candidateColumns + `)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		c.ParamHash, c.Instrument, c.Revision, c.RuleDoc(), c.CreatedAtMs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert candidate: %w", err)
	}
	return nil
}

// GetByID retrieves a candidate by its param hash. Returns ErrNotFound if not exists.
func (s *CandidateStore) GetByID(ctx context.Context, paramHash string) (*domain.CandidateSpec, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE param_hash = $1`

	c, err := scanCandidate(s.pool.QueryRow(ctx, query, paramHash))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get candidate by id: %w", err)
	}
	return c, nil
}

// GetByInstrument retrieves all candidates for an instrument, ordered by created_at ASC.
func (s *CandidateStore) GetByInstrument(ctx context.Context, instrument string) ([]*domain.CandidateSpec, error) {
	query := `
		SELECT ` + candidateColumns + `
		FROM candidates
		WHERE instrument = $1
		ORDER BY created_at_ms ASC, param_hash ASC
	`

	rows, err := s.pool.Query(ctx, query, instrument)
	if err != nil {
		return nil, fmt.Errorf("get candidates by instrument: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// List retrieves all candidates, ordered by (created_at, param_hash) ASC.
func (s *CandidateStore) List(ctx context.Context) ([]*domain.CandidateSpec, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates ORDER BY created_at_ms ASC, param_hash ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

func scanCandidate(row pgx.Row) (*domain.CandidateSpec, error) {
	var c domain.CandidateSpec
	var doc domain.RuleSetDoc
	if err := row.Scan(&c.ParamHash, &c.Instrument, &c.Revision, &doc, &c.CreatedAtMs); err != nil {
		return nil, err
	}
	if err := c.ApplyRuleDoc(doc); err != nil {
		return nil, fmt.Errorf("decode rules of %s: %w", c.ParamHash, err)
	}
	return &c, nil
}

func scanCandidates(rows pgx.Rows) ([]*domain.CandidateSpec, error) {
	var result []*domain.CandidateSpec
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return result, nil
}

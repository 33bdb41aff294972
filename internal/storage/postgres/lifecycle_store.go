package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// LifecycleStore implements storage.LifecycleStore using PostgreSQL.
type LifecycleStore struct {
	pool *Pool
}

// NewLifecycleStore creates a new LifecycleStore.
func NewLifecycleStore(pool *Pool) *LifecycleStore {
	return &LifecycleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LifecycleStore = (*LifecycleStore)(nil)

const transitionColumns = `candidate_id, seq, from_stage, to_stage, at_ms, reason`

// Append adds t at position t.Seq. Returns ErrConflict if that position is
// taken or the history is not exactly t.Seq entries long.
func (s *LifecycleStore) Append(ctx context.Context, t *domain.Transition) error {
	if t == nil || t.CandidateID == "" || t.Seq < 0 || !t.To.IsValid() {
		return storage.ErrInvalidInput
	}

	// The count guard rejects gaps; the primary key rejects concurrent appends
	// that both saw the same count.
	query := `
		INSERT INTO lifecycle_transitions (` + transitionColumns + `)
		SELECT $1::text, $2::int, $3::text, $4::text, $5::bigint, $6::text
		WHERE (SELECT count(*) FROM lifecycle_transitions WHERE candidate_id = $1::text) = $2::int
	`

	tag, err := s.pool.Exec(ctx, query,
		t.CandidateID, t.Seq, string(t.From), string(t.To), t.AtMs, t.Reason,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("append transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrConflict
	}
	return nil
}

// History retrieves a candidate's transitions ordered by seq ASC.
func (s *LifecycleStore) History(ctx context.Context, candidateID string) ([]*domain.Transition, error) {
	query := `
		SELECT ` + transitionColumns + `
		FROM lifecycle_transitions
		WHERE candidate_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, candidateID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	result, err := scanTransitions(rows)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []*domain.Transition{}
	}
	return result, nil
}

// ListByStage retrieves the last transition of every candidate currently at stage.
func (s *LifecycleStore) ListByStage(ctx context.Context, stage domain.Stage) ([]*domain.Transition, error) {
	query := `
		SELECT ` + transitionColumns + `
		FROM (
			SELECT DISTINCT ON (candidate_id) ` + transitionColumns + `
			FROM lifecycle_transitions
			ORDER BY candidate_id, seq DESC
		) latest
		WHERE to_stage = $1
		ORDER BY candidate_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(stage))
	if err != nil {
		return nil, fmt.Errorf("list by stage: %w", err)
	}
	defer rows.Close()

	return scanTransitions(rows)
}

// CountByStage returns the number of candidates at each current stage.
func (s *LifecycleStore) CountByStage(ctx context.Context) (map[domain.Stage]int, error) {
	query := `
		SELECT to_stage, count(*)
		FROM (
			SELECT DISTINCT ON (candidate_id) to_stage
			FROM lifecycle_transitions
			ORDER BY candidate_id, seq DESC
		) latest
		GROUP BY to_stage
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count by stage: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Stage]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("scan stage count: %w", err)
		}
		counts[domain.Stage(stage)] = n
	}
	return counts, rows.Err()
}

func scanTransitions(rows pgx.Rows) ([]*domain.Transition, error) {
	var result []*domain.Transition
	for rows.Next() {
		var t domain.Transition
		var from, to string
		if err := rows.Scan(&t.CandidateID, &t.Seq, &from, &to, &t.AtMs, &t.Reason); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.From, t.To = domain.Stage(from), domain.Stage(to)
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return result, nil
}

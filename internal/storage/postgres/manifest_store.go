package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// ManifestStore implements storage.ManifestStore using PostgreSQL.
// The frozen spec is stored flattened next to its JSONB rule document.
type ManifestStore struct {
	pool *Pool
}

// NewManifestStore creates a new ManifestStore.
func NewManifestStore(pool *Pool) *ManifestStore {
	return &ManifestStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ManifestStore = (*ManifestStore)(nil)

const manifestColumns = `
	param_hash, lineage_hash, edge_code, version, instrument, revision, rules,
	spec_created_at_ms, metrics, outcome_id, status, approved_at_ms, sync_flags`

// Insert adds a new entry. Returns ErrDuplicateKey if param_hash, or the
// (lineage_hash, version) pair, exists.
func (s *ManifestStore) Insert(ctx context.Context, e *domain.ManifestEntry) error {
	if e == nil || e.ParamHash == "" || e.Spec == nil {
		return storage.ErrInvalidInput
	}

	flags := e.SyncFlags
	if flags == nil {
		flags = map[string]bool{}
	}

	query := `
		INSERT INTO edge_manifest (` + manifestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query,
		e.ParamHash, e.LineageHash, e.EdgeCode, e.Version,
		e.Spec.Instrument, e.Spec.Revision, e.Spec.RuleDoc(), e.Spec.CreatedAtMs,
		e.Metrics, e.OutcomeID, string(e.Status), e.ApprovedAtMs, flags,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert manifest entry: %w", err)
	}
	return nil
}

// GetByParamHash retrieves an entry. Returns ErrNotFound if not exists.
func (s *ManifestStore) GetByParamHash(ctx context.Context, paramHash string) (*domain.ManifestEntry, error) {
	query := `SELECT ` + manifestColumns + ` FROM edge_manifest WHERE param_hash = $1`

	e, err := scanManifestEntry(s.pool.QueryRow(ctx, query, paramHash))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get manifest entry: %w", err)
	}
	return e, nil
}

// List retrieves all entries ordered by (approved_at, param_hash) ASC.
func (s *ManifestStore) List(ctx context.Context) ([]*domain.ManifestEntry, error) {
	query := `SELECT ` + manifestColumns + ` FROM edge_manifest ORDER BY approved_at_ms ASC, param_hash ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list manifest: %w", err)
	}
	defer rows.Close()

	var result []*domain.ManifestEntry
	for rows.Next() {
		e, err := scanManifestEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan manifest entry: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manifest: %w", err)
	}
	return result, nil
}

// CountByLineage returns the number of entries sharing a lineage hash.
func (s *ManifestStore) CountByLineage(ctx context.Context, lineageHash string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM edge_manifest WHERE lineage_hash = $1`, lineageHash,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count lineage: %w", err)
	}
	return n, nil
}

// MarkSynced sets a consumer's sync flag in place and returns the updated entry.
func (s *ManifestStore) MarkSynced(ctx context.Context, paramHash, consumer string) (*domain.ManifestEntry, error) {
	if consumer == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		UPDATE edge_manifest
		SET sync_flags = sync_flags || jsonb_build_object($2::text, true)
		WHERE param_hash = $1
		RETURNING ` + manifestColumns

	e, err := scanManifestEntry(s.pool.QueryRow(ctx, query, paramHash, consumer))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("mark synced: %w", err)
	}
	return e, nil
}

// SetStatus updates the downstream status. Rule fields are never modified.
func (s *ManifestStore) SetStatus(ctx context.Context, paramHash string, status domain.ManifestStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE edge_manifest SET status = $2 WHERE param_hash = $1`,
		paramHash, string(status),
	)
	if err != nil {
		return fmt.Errorf("set manifest status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanManifestEntry(row pgx.Row) (*domain.ManifestEntry, error) {
	var e domain.ManifestEntry
	var spec domain.CandidateSpec
	var doc domain.RuleSetDoc
	var status string
	err := row.Scan(
		&e.ParamHash, &e.LineageHash, &e.EdgeCode, &e.Version,
		&spec.Instrument, &spec.Revision, &doc, &spec.CreatedAtMs,
		&e.Metrics, &e.OutcomeID, &status, &e.ApprovedAtMs, &e.SyncFlags,
	)
	if err != nil {
		return nil, err
	}
	spec.ParamHash = e.ParamHash
	if err := spec.ApplyRuleDoc(doc); err != nil {
		return nil, fmt.Errorf("decode rules of %s: %w", e.ParamHash, err)
	}
	e.Spec = &spec
	e.Status = domain.ManifestStatus(status)
	return &e, nil
}

// Package sqlite keeps the generation and test audit journal in a local
// SQLite file, so audit history survives independently of the main store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
	"edge-lab/internal/storage/migrations"
)

// Journal implements storage.GenerationRunStore and storage.TestAuditStore.
type Journal struct {
	db *sql.DB
}

// Compile-time interface checks.
var (
	_ storage.GenerationRunStore = (*Journal)(nil)
	_ storage.TestAuditStore     = (*Journal)(nil)
)

// Open opens (creating if needed) the journal at path and applies its schema.
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Insert adds a new generation run. Returns ErrDuplicateKey if run_id exists.
func (j *Journal) Insert(ctx context.Context, r *domain.GenerationRun) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}
	instruments, err := json.Marshal(r.Instruments)
	if err != nil {
		return fmt.Errorf("encode instruments: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO generation_runs
		(run_id, at_ms, mode, instruments, requested, generated, accepted, duplicates)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.AtMs, r.Mode, string(instruments),
		r.Requested, r.Generated, r.Accepted, r.Duplicates,
	)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert generation run: %w", err)
	}
	return nil
}

// List retrieves all generation runs ordered by at_ms ASC.
func (j *Journal) List(ctx context.Context) ([]*domain.GenerationRun, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, at_ms, mode, instruments, requested, generated, accepted, duplicates
		FROM generation_runs
		ORDER BY at_ms ASC, run_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list generation runs: %w", err)
	}
	defer rows.Close()

	var result []*domain.GenerationRun
	for rows.Next() {
		var r domain.GenerationRun
		var instruments string
		if err := rows.Scan(&r.RunID, &r.AtMs, &r.Mode, &instruments,
			&r.Requested, &r.Generated, &r.Accepted, &r.Duplicates); err != nil {
			return nil, fmt.Errorf("scan generation run: %w", err)
		}
		if err := json.Unmarshal([]byte(instruments), &r.Instruments); err != nil {
			return nil, fmt.Errorf("decode instruments of %s: %w", r.RunID, err)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

// InsertBulk adds audit rows in one transaction. Fails entire batch on
// duplicate (run_id, candidate_id, test_id).
func (j *Journal) InsertBulk(ctx context.Context, rows []*domain.TestAuditRow) error {
	if len(rows) == 0 {
		return nil
	}
	for _, r := range rows {
		if r == nil || r.CandidateID == "" || r.TestID == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO test_audit
		(run_id, candidate_id, category, test_id, severity, pass,
		 trade_count, avg_r, total_r, max_drawdown_r, detail, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.RunID, r.CandidateID, r.Category, r.TestID, r.Severity, r.Pass,
			r.TradeCount, r.AvgR, r.TotalR, r.MaxDrawdownR, r.Detail, r.CreatedAtMs,
		)
		if err != nil {
			if isConstraintError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert test audit: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByCandidateID retrieves audit rows ordered by (created_at, test_id) ASC.
func (j *Journal) GetByCandidateID(ctx context.Context, candidateID string) ([]*domain.TestAuditRow, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, candidate_id, category, test_id, severity, pass,
		       trade_count, avg_r, total_r, max_drawdown_r, detail, created_at_ms
		FROM test_audit
		WHERE candidate_id = ?
		ORDER BY created_at_ms ASC, test_id ASC`, candidateID)
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

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

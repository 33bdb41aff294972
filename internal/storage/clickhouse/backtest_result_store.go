package clickhouse

import (
	"context"
	"fmt"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// BacktestResultStore implements storage.BacktestResultStore using ClickHouse.
type BacktestResultStore struct {
	conn *Conn
}

// NewBacktestResultStore creates a new BacktestResultStore.
func NewBacktestResultStore(conn *Conn) *BacktestResultStore {
	return &BacktestResultStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BacktestResultStore = (*BacktestResultStore)(nil)

const resultColumns = `
	run_id, candidate_id, scenario_id, kind,
	trade_count, wins, losses, win_rate, avg_r, total_r,
	max_drawdown_r, profit_factor, max_consecutive_losses`

// InsertBulk adds multiple results. Fails entire batch on duplicate (run_id, candidate_id, scenario_id).
func (s *BacktestResultStore) InsertBulk(ctx context.Context, results []*domain.BacktestResult) error {
	if len(results) == 0 {
		return nil
	}

	type key struct{ runID, candidateID, scenarioID string }
	seen := make(map[key]struct{}, len(results))
	candidates := make(map[string]struct{})
	for _, r := range results {
		if r == nil || r.CandidateID == "" || r.ScenarioID == "" {
			return storage.ErrInvalidInput
		}
		k := key{r.RunID, r.CandidateID, r.ScenarioID}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		candidates[r.CandidateID] = struct{}{}
	}

	for id := range candidates {
		stored, err := s.GetByCandidateID(ctx, id)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, r := range stored {
			if _, dup := seen[key{r.RunID, r.CandidateID, r.ScenarioID}]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO backtest_results (`+resultColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, r := range results {
		err := batch.Append(
			r.RunID, r.CandidateID, r.ScenarioID, string(r.Kind),
			int32(r.TradeCount), int32(r.Wins), int32(r.Losses), r.WinRate, r.AvgR, r.TotalR,
			r.MaxDrawdownR, r.ProfitFactor, int32(r.MaxConsecutiveLosses),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByCandidateID retrieves results ordered by (run_id, scenario_id) ASC.
func (s *BacktestResultStore) GetByCandidateID(ctx context.Context, candidateID string) ([]*domain.BacktestResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM backtest_results
		WHERE candidate_id = ?
		ORDER BY run_id ASC, scenario_id ASC
	`

	rows, err := s.conn.Query(ctx, query, candidateID)
	if err != nil {
		return nil, fmt.Errorf("query results by candidate id: %w", err)
	}
	defer rows.Close()

	var result []*domain.BacktestResult
	for rows.Next() {
		var r domain.BacktestResult
		var kind string
		var trades, wins, losses, streak int32
		err := rows.Scan(
			&r.RunID, &r.CandidateID, &r.ScenarioID, &kind,
			&trades, &wins, &losses, &r.WinRate, &r.AvgR, &r.TotalR,
			&r.MaxDrawdownR, &r.ProfitFactor, &streak,
		)
		if err != nil {
			return nil, fmt.Errorf("scan backtest result: %w", err)
		}
		r.Kind = domain.ScenarioKind(kind)
		r.TradeCount, r.Wins, r.Losses, r.MaxConsecutiveLosses = int(trades), int(wins), int(losses), int(streak)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest results: %w", err)
	}
	return result, nil
}

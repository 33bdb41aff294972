package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// appendAttempts bounds retries after losing an append race.
const appendAttempts = 3

// Manager is the only writer of lifecycle transitions.
type Manager struct {
	store  storage.LifecycleStore
	now    func() time.Time
	logger *slog.Logger
}

// ManagerOptions contains configuration for creating a Manager.
type ManagerOptions struct {
	Store  storage.LifecycleStore
	Now    func() time.Time // nil = time.Now
	Logger *slog.Logger     // nil = slog.Default()
}

// NewManager creates a lifecycle manager.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{store: opts.Store, now: opts.Now, logger: opts.Logger}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Register records a new candidate as GENERATED.
func (m *Manager) Register(ctx context.Context, candidateID, reason string) (*domain.Transition, error) {
	return m.Transition(ctx, candidateID, domain.StageGenerated, reason)
}

// Transition appends from the current stage to to. The current stage is
// re-derived from the log on every attempt; if a concurrent writer appended
// first, the edge is re-checked against the new stage.
func (m *Manager) Transition(ctx context.Context, candidateID string, to domain.Stage, reason string) (*domain.Transition, error) {
	for attempt := 0; ; attempt++ {
		history, err := m.store.History(ctx, candidateID)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		from := domain.CurrentStage(history)
		if err := checkTransition(from, to); err != nil {
			return nil, fmt.Errorf("candidate %s: %w", candidateID, err)
		}

		t := &domain.Transition{
			CandidateID: candidateID,
			Seq:         len(history),
			From:        from,
			To:          to,
			AtMs:        m.now().UnixMilli(),
			Reason:      reason,
		}
		err = m.store.Append(ctx, t)
		if err == nil {
			m.logger.Debug("lifecycle transition",
				"candidate_id", candidateID,
				"from", from,
				"to", to,
				"reason", reason,
			)
			return t, nil
		}
		if !errors.Is(err, storage.ErrConflict) || attempt+1 >= appendAttempts {
			return nil, fmt.Errorf("append transition: %w", err)
		}
	}
}

// Current returns the candidate's derived stage, or "" if it has no history.
func (m *Manager) Current(ctx context.Context, candidateID string) (domain.Stage, error) {
	history, err := m.store.History(ctx, candidateID)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	return domain.CurrentStage(history), nil
}

// History returns the candidate's full transition log.
func (m *Manager) History(ctx context.Context, candidateID string) ([]*domain.Transition, error) {
	return m.store.History(ctx, candidateID)
}

// AtStage lists the ids of candidates currently at stage, ordered by id.
func (m *Manager) AtStage(ctx context.Context, stage domain.Stage) ([]string, error) {
	last, err := m.store.ListByStage(ctx, stage)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(last))
	for i, t := range last {
		ids[i] = t.CandidateID
	}
	return ids, nil
}

// Counts returns the number of candidates at every stage, zeros included.
func (m *Manager) Counts(ctx context.Context) (map[domain.Stage]int, error) {
	counts, err := m.store.CountByStage(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.Stage]int, len(domain.AllStages))
	for _, s := range domain.AllStages {
		out[s] = counts[s]
	}
	return out, nil
}

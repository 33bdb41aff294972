// Package manifest holds approved, frozen edge specifications. Entries are
// written once; only downstream sync flags and status change afterwards.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"edge-lab/internal/domain"
	"edge-lab/internal/idhash"
	"edge-lab/internal/metrics"
	"edge-lab/internal/storage"
)

// Manifest errors
var (
	// ErrManifestConflict is returned when an entry for the parameter hash already exists.
	ErrManifestConflict = errors.New("manifest entry already exists")

	// ErrTierTooLow is returned when the outcome's tier is below the configured minimum.
	ErrTierTooLow = errors.New("confidence tier below minimum")

	// ErrNotPassed is returned when the outcome failed a validation gate.
	ErrNotPassed = errors.New("validation outcome did not pass")

	// ErrUnknownConsumer is returned when marking sync for an unconfigured consumer.
	ErrUnknownConsumer = errors.New("unknown manifest consumer")
)

// DefaultConsumers are the downstream readers that must ingest an entry
// before it becomes active.
var DefaultConsumers = []string{"trading", "docs"}

// snapshotPlaces is the rounding applied to frozen metrics.
const snapshotPlaces = 4

// Manifest approves and serves frozen edges.
type Manifest struct {
	store     storage.ManifestStore
	minTier   domain.ConfidenceTier
	consumers []string
	now       func() time.Time
	logger    *slog.Logger
}

// Options contains configuration for creating a Manifest.
type Options struct {
	Store     storage.ManifestStore
	MinTier   domain.ConfidenceTier // "" = MEDIUM
	Consumers []string              // nil = DefaultConsumers
	Now       func() time.Time      // nil = time.Now
	Logger    *slog.Logger          // nil = slog.Default()
}

// New creates a manifest.
func New(opts Options) *Manifest {
	m := &Manifest{
		store:     opts.Store,
		minTier:   opts.MinTier,
		consumers: opts.Consumers,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if m.minTier == "" {
		m.minTier = domain.TierMedium
	}
	if m.consumers == nil {
		m.consumers = DefaultConsumers
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// MinTier returns the minimum tier eligible for approval.
func (m *Manifest) MinTier() domain.ConfidenceTier {
	return m.minTier
}

// Consumers returns the consumers that must sync before activation.
func (m *Manifest) Consumers() []string {
	return slices.Clone(m.consumers)
}

// Approve freezes spec with the metrics of outcome as a new versioned entry.
// Fails without mutation if the outcome did not pass, its tier is below the
// minimum, or an entry for the parameter hash already exists.
func (m *Manifest) Approve(ctx context.Context, spec *domain.CandidateSpec, outcome *domain.ValidationOutcome) (*domain.ManifestEntry, error) {
	if spec == nil || outcome == nil || outcome.CandidateID != spec.ID() {
		return nil, fmt.Errorf("%w: outcome does not belong to candidate", storage.ErrInvalidInput)
	}
	if !outcome.Passed {
		return nil, fmt.Errorf("%w: %s", ErrNotPassed, spec.ID())
	}
	if !outcome.Tier.AtLeast(m.minTier) {
		return nil, fmt.Errorf("%w: %s < %s", ErrTierTooLow, outcome.Tier, m.minTier)
	}

	_, err := m.store.GetByParamHash(ctx, spec.ID())
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrManifestConflict, spec.ID())
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("check existing entry: %w", err)
	}

	lineage := idhash.ComputeLineageHash(spec)
	prior, err := m.store.CountByLineage(ctx, lineage)
	if err != nil {
		return nil, fmt.Errorf("count lineage: %w", err)
	}

	entry := &domain.ManifestEntry{
		ParamHash:    spec.ID(),
		LineageHash:  lineage,
		EdgeCode:     idhash.EdgeCode(spec.ID()),
		Version:      prior + 1,
		Spec:         spec,
		Metrics:      Snapshot(outcome),
		OutcomeID:    outcome.OutcomeID,
		Status:       domain.ManifestApproved,
		ApprovedAtMs: m.now().UnixMilli(),
		SyncFlags:    make(map[string]bool, len(m.consumers)),
	}
	for _, c := range m.consumers {
		entry.SyncFlags[c] = false
	}

	if err := m.store.Insert(ctx, entry); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", ErrManifestConflict, spec.ID())
		}
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	m.logger.Info("edge approved",
		"candidate_id", spec.ID(),
		"edge_code", entry.EdgeCode,
		"version", entry.Version,
		"tier", outcome.Tier,
	)
	return entry, nil
}

// MarkSynced records that consumer ingested the entry. activated is true when
// this call completed the consumer set of an APPROVED entry, which is then
// moved to ACTIVE.
func (m *Manifest) MarkSynced(ctx context.Context, paramHash, consumer string) (entry *domain.ManifestEntry, activated bool, err error) {
	if !slices.Contains(m.consumers, consumer) {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownConsumer, consumer)
	}

	entry, err = m.store.MarkSynced(ctx, paramHash, consumer)
	if err != nil {
		return nil, false, fmt.Errorf("mark synced: %w", err)
	}
	if entry.Status != domain.ManifestApproved || !entry.AllSynced(m.consumers) {
		return entry, false, nil
	}

	if err := m.store.SetStatus(ctx, paramHash, domain.ManifestActive); err != nil {
		return nil, false, fmt.Errorf("activate: %w", err)
	}
	entry.Status = domain.ManifestActive
	return entry, true, nil
}

// Suspend marks the entry SUSPENDED. The frozen spec is kept.
func (m *Manifest) Suspend(ctx context.Context, paramHash string) error {
	if err := m.store.SetStatus(ctx, paramHash, domain.ManifestSuspended); err != nil {
		return fmt.Errorf("suspend: %w", err)
	}
	return nil
}

// Get returns one entry.
func (m *Manifest) Get(ctx context.Context, paramHash string) (*domain.ManifestEntry, error) {
	return m.store.GetByParamHash(ctx, paramHash)
}

// List returns every entry in approval order.
func (m *Manifest) List(ctx context.Context) ([]*domain.ManifestEntry, error) {
	return m.store.List(ctx)
}

// Snapshot freezes an outcome's baseline metrics, rounded for stable export.
func Snapshot(o *domain.ValidationOutcome) domain.MetricsSnapshot {
	b := o.Baseline
	return domain.MetricsSnapshot{
		TradeCount:    b.TradeCount,
		WinRate:       metrics.Round(b.WinRate, snapshotPlaces),
		AvgR:          metrics.Round(b.AvgR, snapshotPlaces),
		TotalR:        metrics.Round(b.TotalR, snapshotPlaces),
		MaxDrawdownR:  metrics.Round(b.MaxDrawdownR, snapshotPlaces),
		ProfitFactor:  metrics.Round(b.ProfitFactor, snapshotPlaces),
		SurvivalScore: o.SurvivalScore,
		Tier:          o.Tier,
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"

	"edge-lab/internal/domain"
	"edge-lab/internal/manifest"
	"edge-lab/internal/storage"
)

// ApprovedEdge is one approval in an ApproveSummary.
type ApprovedEdge struct {
	CandidateID string                `json:"candidate_id"`
	EdgeCode    string                `json:"edge_code"`
	Version     int                   `json:"version"`
	Tier        domain.ConfidenceTier `json:"tier"`
}

// ApproveSummary reports an approval pass.
type ApproveSummary struct {
	Approved []ApprovedEdge    `json:"approved"`
	Skipped  []CandidateResult `json:"skipped"`
}

// Approve promotes every SURVIVOR whose latest passing outcome meets minTier
// into the manifest, then moves it to APPROVED. minTier below the manifest's
// configured floor is raised to the floor.
func (e *Engine) Approve(ctx context.Context, minTier domain.ConfidenceTier) (*ApproveSummary, error) {
	if floor := e.manifest.MinTier(); minTier.Rank() < floor.Rank() {
		minTier = floor
	}

	ids, err := e.lifecycle.AtStage(ctx, domain.StageSurvivor)
	if err != nil {
		return nil, e.storageErr("list survivors", err)
	}

	sum := &ApproveSummary{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		edge, reason, err := e.approveOne(ctx, id, minTier)
		if err != nil {
			return nil, e.storageErr("approve", err)
		}
		if edge == nil {
			sum.Skipped = append(sum.Skipped, CandidateResult{CandidateID: id, Status: StatusSkipped, Reason: reason})
			e.logger.Info("approval skipped", "candidate_id", id, "reason", reason)
			continue
		}
		sum.Approved = append(sum.Approved, *edge)
		if e.recorder != nil {
			e.recorder.EdgeApproved(edge.Tier)
		}
	}

	e.logger.Info("approval pass complete",
		"min_tier", minTier,
		"survivors", len(ids),
		"approved", len(sum.Approved),
		"skipped", len(sum.Skipped),
	)
	return sum, nil
}

// approveOne returns either an edge, a skip reason, or a storage error.
// The manifest entry is written before the lifecycle moves; a retried pass
// finds the entry and completes the transition.
func (e *Engine) approveOne(ctx context.Context, id string, minTier domain.ConfidenceTier) (*ApprovedEdge, string, error) {
	spec, err := e.stores.Candidates.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "candidate record missing", nil
	}
	if err != nil {
		return nil, "", err
	}

	outcomes, err := e.stores.Outcomes.GetByCandidateID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	var latest *domain.ValidationOutcome
	for _, o := range outcomes {
		if o.Passed {
			latest = o
		}
	}
	if latest == nil {
		return nil, "no passing validation outcome", nil
	}
	if !latest.Tier.AtLeast(minTier) {
		return nil, fmt.Sprintf("tier %s below %s", latest.Tier, minTier), nil
	}

	entry, err := e.manifest.Approve(ctx, spec, latest)
	switch {
	case errors.Is(err, manifest.ErrManifestConflict):
		entry, err = e.manifest.Get(ctx, id)
		if err != nil {
			return nil, "", err
		}
	case errors.Is(err, manifest.ErrTierTooLow), errors.Is(err, manifest.ErrNotPassed),
		errors.Is(err, storage.ErrInvalidInput):
		return nil, err.Error(), nil
	case err != nil:
		return nil, "", err
	}

	reason := fmt.Sprintf("approved as %s v%d", entry.EdgeCode, entry.Version)
	if _, err := e.lifecycle.Transition(ctx, id, domain.StageApproved, reason); err != nil {
		if lostRace(err) {
			return nil, err.Error(), nil
		}
		return nil, "", err
	}
	return &ApprovedEdge{
		CandidateID: id,
		EdgeCode:    entry.EdgeCode,
		Version:     entry.Version,
		Tier:        entry.Metrics.Tier,
	}, "", nil
}

// SyncResult reports one consumer acknowledgement.
type SyncResult struct {
	EdgeCode  string                `json:"edge_code"`
	Status    domain.ManifestStatus `json:"status"`
	Synced    map[string]bool       `json:"synced"`
	Activated bool                  `json:"activated"`
}

// Sync records that consumer ingested the entry. Once every consumer has, the
// entry and its candidate become ACTIVE and a live-tracking placeholder is
// written. Repeating a sync is harmless and repairs a half-finished activation.
func (e *Engine) Sync(ctx context.Context, paramHash, consumer string) (*SyncResult, error) {
	entry, activated, err := e.manifest.MarkSynced(ctx, paramHash, consumer)
	if err != nil {
		if errors.Is(err, manifest.ErrUnknownConsumer) || errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, e.storageErr("sync", err)
	}

	if entry.Status == domain.ManifestActive {
		if err := e.activate(ctx, entry); err != nil {
			return nil, e.storageErr("activate", err)
		}
	}

	return &SyncResult{
		EdgeCode:  entry.EdgeCode,
		Status:    entry.Status,
		Synced:    entry.SyncFlags,
		Activated: activated,
	}, nil
}

func (e *Engine) activate(ctx context.Context, entry *domain.ManifestEntry) error {
	stage, err := e.lifecycle.Current(ctx, entry.ParamHash)
	if err != nil {
		return err
	}
	if stage == domain.StageApproved {
		if _, err := e.lifecycle.Transition(ctx, entry.ParamHash, domain.StageActive, "all consumers synced"); err != nil && !lostRace(err) {
			return err
		}
	}

	rec := &domain.LiveTrackingRecord{
		ParamHash:   entry.ParamHash,
		EdgeCode:    entry.EdgeCode,
		Instrument:  entry.Spec.Instrument,
		ActivatedMs: e.now().UnixMilli(),
		Status:      domain.LiveTrackingPending,
	}
	if err := e.stores.Live.Insert(ctx, rec); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("insert live tracking: %w", err)
	}
	e.logger.Info("edge active", "candidate_id", entry.ParamHash, "edge_code", entry.EdgeCode)
	return nil
}

// Suspend retires an APPROVED or ACTIVE edge. It is the hook for the external
// monitor. The candidate reaches SUSPENDED before the manifest status changes.
func (e *Engine) Suspend(ctx context.Context, paramHash, reason string) error {
	if _, err := e.manifest.Get(ctx, paramHash); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return e.storageErr("suspend", err)
	}

	stage, err := e.lifecycle.Current(ctx, paramHash)
	if err != nil {
		return e.storageErr("suspend", err)
	}
	if stage != domain.StageSuspended {
		if _, err := e.lifecycle.Transition(ctx, paramHash, domain.StageSuspended, reason); err != nil {
			if lostRace(err) {
				return err
			}
			return e.storageErr("suspend", err)
		}
	}
	if err := e.manifest.Suspend(ctx, paramHash); err != nil {
		return e.storageErr("suspend", err)
	}

	e.logger.Info("edge suspended", "candidate_id", paramHash, "reason", reason)
	return nil
}

// Export renders every manifest entry as the consumer YAML document.
func (e *Engine) Export(ctx context.Context) ([]byte, error) {
	entries, err := e.manifest.List(ctx)
	if err != nil {
		return nil, e.storageErr("export", err)
	}
	return manifest.MarshalYAML(entries, e.now().UnixMilli())
}

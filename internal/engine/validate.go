package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"edge-lab/internal/domain"
	"edge-lab/internal/idhash"
	"edge-lab/internal/simulation"
	"edge-lab/internal/storage"
	"edge-lab/internal/validation"
)

// Candidate statuses in a batch summary.
const (
	StatusSurvivor = "survivor"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
)

// ValidateRequest selects the candidates and data range of a validation batch.
type ValidateRequest struct {
	Limit     int    // maximum candidates; <= 0 = all pending
	StartDate string // inclusive YYYY-MM-DD; "" = unbounded
	EndDate   string // inclusive YYYY-MM-DD; "" = unbounded
}

// CandidateResult is one candidate's line in a batch summary.
type CandidateResult struct {
	CandidateID string                `json:"candidate_id"`
	Status      string                `json:"status"`
	Score       float64               `json:"survival_score,omitempty"`
	Tier        domain.ConfidenceTier `json:"tier,omitempty"`
	Reason      string                `json:"reason,omitempty"`
}

// ValidateSummary reports a validation batch.
type ValidateSummary struct {
	RunID     string            `json:"run_id"`
	Processed int               `json:"processed"`
	Survivors int               `json:"survivors"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Cancelled bool              `json:"cancelled,omitempty"`
	Results   []CandidateResult `json:"results"`
}

// Validate runs the validation battery over pending candidates: those left in
// TESTING by an interrupted batch first, then GENERATED ones, in id order.
//
// Candidates run concurrently on the worker pool. Cancelling ctx stops the
// batch between candidates; a candidate already under test finishes its
// writes. The partial summary is returned together with ctx's error.
// Per-candidate problems are recorded in the summary; only storage failures
// abort the batch.
func (e *Engine) Validate(ctx context.Context, req ValidateRequest) (*ValidateSummary, error) {
	if err := checkRange(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	queue, err := e.pending(ctx, req.Limit)
	if err != nil {
		return nil, e.storageErr("list pending", err)
	}

	start := e.now()
	sum := &ValidateSummary{RunID: idhash.NewRunID(start)}
	results := make([]*CandidateResult, len(queue))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.workers)
	for i, p := range queue {
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return nil
			}
			res, err := e.validateOne(context.WithoutCancel(egCtx), p, sum.RunID, req)
			if err != nil {
				return err
			}
			results[i] = &res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, e.storageErr("validate", err)
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		sum.Processed++
		switch res.Status {
		case StatusSurvivor:
			sum.Survivors++
		case StatusFailed:
			sum.Failed++
		default:
			sum.Skipped++
		}
		sum.Results = append(sum.Results, *res)
	}
	sum.Cancelled = ctx.Err() != nil

	e.logger.Info("validation batch complete",
		"run_id", sum.RunID,
		"pending", len(queue),
		"processed", sum.Processed,
		"survivors", sum.Survivors,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"cancelled", sum.Cancelled,
		"duration", e.now().Sub(start),
	)
	if sum.Cancelled {
		return sum, ctx.Err()
	}
	return sum, nil
}

// pendingCandidate is a queued candidate and the stage it was listed at.
type pendingCandidate struct {
	id    string
	stage domain.Stage
}

// pending lists TESTING then GENERATED candidates.
func (e *Engine) pending(ctx context.Context, limit int) ([]pendingCandidate, error) {
	var queue []pendingCandidate
	for _, stage := range []domain.Stage{domain.StageTesting, domain.StageGenerated} {
		ids, err := e.lifecycle.AtStage(ctx, stage)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			queue = append(queue, pendingCandidate{id: id, stage: stage})
		}
	}
	if limit > 0 && len(queue) > limit {
		queue = queue[:limit]
	}
	return queue, nil
}

// validateOne tests one candidate. The returned error is always a storage
// failure; everything else is folded into the result.
// Steps:
//  1. Load the spec and confirm it is still at the stage it was queued at
//  2. Load sessions; missing data skips the candidate, which stays GENERATED
//  3. GENERATED -> TESTING
//  4. Run the battery; a simulation error fails the candidate, keeping
//     the partial records and an outcome that names the stopped stage
//  5. Persist audit rows, backtest results and the outcome
//  6. TESTING -> SURVIVOR | FAILED
func (e *Engine) validateOne(ctx context.Context, p pendingCandidate, runID string, req ValidateRequest) (CandidateResult, error) {
	id := p.id
	began := e.now()
	res := CandidateResult{CandidateID: id}
	skip := func(reason string) (CandidateResult, error) {
		res.Status = StatusSkipped
		res.Reason = reason
		e.logger.Info("candidate skipped", "candidate_id", id, "reason", reason)
		e.observe(res, nil, began)
		return res, nil
	}

	// 1. Spec and stage
	spec, err := e.stores.Candidates.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return skip("candidate record missing")
	}
	if err != nil {
		return res, fmt.Errorf("load candidate %s: %w", id, err)
	}
	stage, err := e.lifecycle.Current(ctx, id)
	if err != nil {
		return res, err
	}
	if stage != p.stage {
		return skip(fmt.Sprintf("stage moved from %s to %s", p.stage, stage))
	}

	// 2. Market data
	sessions, err := e.loader.Load(ctx, spec, req.StartDate, req.EndDate)
	if errors.Is(err, simulation.ErrDataUnavailable) {
		return skip(err.Error())
	}
	if err != nil {
		return res, fmt.Errorf("load sessions %s: %w", id, err)
	}

	// 3. Start testing
	if stage == domain.StageGenerated {
		if _, err := e.lifecycle.Transition(ctx, id, domain.StageTesting, "validation run "+runID); err != nil {
			if lostRace(err) {
				return skip(err.Error())
			}
			return res, err
		}
	}

	// 4. Battery
	rep, err := e.pipeline.Run(validation.Input{
		Spec:      spec,
		Sessions:  sessions,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		RunID:     runID,
		NowMs:     began.UnixMilli(),
	})
	if err != nil && rep == nil {
		reason := err.Error()
		if err := e.conclude(ctx, id, domain.StageFailed, reason); err != nil {
			if lostRace(err) {
				return skip(err.Error())
			}
			return res, err
		}
		res.Status = StatusFailed
		res.Reason = reason
		e.logger.Warn("candidate failed", "candidate_id", id, "reason", reason)
		e.observe(res, nil, began)
		return res, nil
	}
	if err != nil {
		// The partial report carries a failed outcome naming the stage.
		e.logger.Warn("validation stage aborted", "candidate_id", id, "reason", err.Error())
	}

	// 5. Records before the stage that depends on them
	if err := e.stores.Audit.InsertBulk(ctx, rep.Audit); err != nil {
		return res, fmt.Errorf("insert audit %s: %w", id, err)
	}
	if err := e.stores.Results.InsertBulk(ctx, rep.Results); err != nil {
		return res, fmt.Errorf("insert backtest results %s: %w", id, err)
	}
	if err := e.stores.Outcomes.Insert(ctx, rep.Outcome); err != nil {
		return res, fmt.Errorf("insert outcome %s: %w", id, err)
	}

	// 6. Conclude
	o := rep.Outcome
	res.Score = o.SurvivalScore
	res.Tier = o.Tier
	to, reason := domain.StageSurvivor, fmt.Sprintf("survival score %.2f (%s)", o.SurvivalScore, o.Tier)
	res.Status = StatusSurvivor
	if !o.Passed {
		to, reason = domain.StageFailed, validation.FailureSummary(o)
		res.Status = StatusFailed
		res.Reason = reason
	}
	if err := e.conclude(ctx, id, to, reason); err != nil {
		if lostRace(err) {
			return skip(err.Error())
		}
		return res, err
	}

	e.logger.Info("candidate validated",
		"candidate_id", id,
		"status", res.Status,
		"score", o.SurvivalScore,
		"tier", o.Tier,
		"reason", res.Reason,
	)
	e.observe(res, o, began)
	return res, nil
}

func (e *Engine) conclude(ctx context.Context, id string, to domain.Stage, reason string) error {
	_, err := e.lifecycle.Transition(ctx, id, to, reason)
	return err
}

func (e *Engine) observe(res CandidateResult, o *domain.ValidationOutcome, began time.Time) {
	if e.recorder == nil {
		return
	}
	var failed []string
	if o != nil {
		for _, g := range o.Gates {
			if !g.Pass {
				failed = append(failed, g.Gate)
			}
		}
	}
	e.recorder.CandidateValidated(res.Status, failed, e.now().Sub(began).Seconds())
}

func checkRange(startDate, endDate string) error {
	for _, d := range []string{startDate, endDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRange, err)
		}
	}
	if startDate != "" && endDate != "" && startDate > endDate {
		return fmt.Errorf("%w: %s after %s", ErrInvalidRange, startDate, endDate)
	}
	return nil
}

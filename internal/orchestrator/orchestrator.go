// Package orchestrator runs the discovery pipeline end to end.
// It coordinates: bar import → generation → validation → approval
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"edge-lab/internal/domain"
	"edge-lab/internal/engine"
	"edge-lab/internal/generator"
	"edge-lab/internal/storage"
)

// Engine is the command surface the orchestrator drives.
type Engine interface {
	ImportBars(ctx context.Context, bars []*domain.Bar, windows []domain.TimeWindow) (*engine.ImportSummary, error)
	Generate(ctx context.Context, req generator.Request) (*generator.Result, error)
	Validate(ctx context.Context, req engine.ValidateRequest) (*engine.ValidateSummary, error)
	Approve(ctx context.Context, minTier domain.ConfidenceTier) (*engine.ApproveSummary, error)
	Stats(ctx context.Context) (*engine.Stats, error)
}

// Orchestrator coordinates one pipeline pass.
type Orchestrator struct {
	engine Engine
	logger *slog.Logger
}

// Options for creating an Orchestrator.
type Options struct {
	Engine Engine
	Logger *slog.Logger // nil = slog.Default()
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{engine: opts.Engine, logger: logger}
}

// Plan describes one pass.
type Plan struct {
	Bars     []*domain.Bar // imported for every window of Generate.Space; nil = use stored bars
	Generate generator.Request
	Validate engine.ValidateRequest
	MinTier  domain.ConfidenceTier // "" = manifest floor
}

// RunResult contains the summary of every phase that ran.
type RunResult struct {
	Import   *engine.ImportSummary   `json:"import,omitempty"`
	Generate *generator.Result       `json:"-"`
	Validate *engine.ValidateSummary `json:"validate"`
	Approve  *engine.ApproveSummary  `json:"approve"`
	Stats    *engine.Stats           `json:"stats"`
}

// Run executes the pass.
// Phases:
//  1. Import bars and precompute features (already stored bars are kept)
//  2. Generate candidates
//  3. Validate every pending candidate
//  4. Approve survivors
//  5. Collect stats
//
// A cancelled validation returns the partial result with ctx's error.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) (*RunResult, error) {
	result := &RunResult{}

	// Phase 1: Import
	if len(plan.Bars) > 0 {
		o.logger.Info("phase 1: importing bars", "bars", len(plan.Bars))
		sum, err := o.engine.ImportBars(ctx, plan.Bars, plan.Generate.Space.Windows)
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			o.logger.Info("phase 1: bars already stored, keeping them")
		case err != nil:
			return nil, fmt.Errorf("phase 1 (import) failed: %w", err)
		default:
			result.Import = sum
		}
	} else {
		o.logger.Info("phase 1: skipping import (no bars)")
	}

	// Phase 2: Generate
	o.logger.Info("phase 2: generating candidates", "mode", plan.Generate.Mode, "count", plan.Generate.Count)
	gen, err := o.engine.Generate(ctx, plan.Generate)
	if err != nil {
		return nil, fmt.Errorf("phase 2 (generate) failed: %w", err)
	}
	result.Generate = gen

	// Phase 3: Validate
	o.logger.Info("phase 3: validating pending candidates")
	result.Validate, err = o.engine.Validate(ctx, plan.Validate)
	if err != nil {
		if result.Validate != nil {
			return result, err
		}
		return nil, fmt.Errorf("phase 3 (validate) failed: %w", err)
	}

	// Phase 4: Approve
	o.logger.Info("phase 4: approving survivors", "min_tier", plan.MinTier)
	result.Approve, err = o.engine.Approve(ctx, plan.MinTier)
	if err != nil {
		return nil, fmt.Errorf("phase 4 (approve) failed: %w", err)
	}

	// Phase 5: Stats
	result.Stats, err = o.engine.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase 5 (stats) failed: %w", err)
	}

	o.logger.Info("pipeline completed",
		"accepted", gen.Run.Accepted,
		"validated", result.Validate.Processed,
		"survivors", result.Validate.Survivors,
		"approved", len(result.Approve.Approved),
	)
	return result, nil
}

// Package generator turns a parameter space into persisted, deduplicated
// candidate specifications.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"edge-lab/internal/domain"
	"edge-lab/internal/idhash"
	"edge-lab/internal/lifecycle"
	"edge-lab/internal/storage"
)

// ErrInvalidRequest is returned for a malformed generation request.
var ErrInvalidRequest = errors.New("invalid generation request")

// Request is one generation call.
type Request struct {
	Mode        string // domain.GenerationModeEnumerate or domain.GenerationModeSample
	Count       int
	Instruments []string
	Space       ParameterSpace
	Seed        int64 // sample mode only
}

// Result summarizes a generation call.
type Result struct {
	Run      *domain.GenerationRun
	Accepted []string // param hashes of newly persisted candidates
}

// Recorder receives per-candidate generation outcomes. May be nil.
type Recorder interface {
	CandidateGenerated(accepted bool)
}

// Generator persists new candidates. The hash index claim happens before any
// write, so of two concurrent submissions of the same point exactly one is
// accepted and the other is counted as a duplicate. A rerun after a storage
// failure completes candidates whose claim outlived their writes.
type Generator struct {
	candidates storage.CandidateStore
	index      storage.HashIndex
	lifecycle  *lifecycle.Manager
	runs       storage.GenerationRunStore
	workers    int
	recorder   Recorder
	now        func() time.Time
	logger     *slog.Logger
}

// Options contains configuration for creating a Generator.
type Options struct {
	Candidates storage.CandidateStore
	Index      storage.HashIndex
	Lifecycle  *lifecycle.Manager
	Runs       storage.GenerationRunStore
	Workers    int              // concurrent persist workers; <= 0 = 4
	Recorder   Recorder         // optional
	Now        func() time.Time // nil = time.Now
	Logger     *slog.Logger     // nil = slog.Default()
}

// New creates a generator.
func New(opts Options) *Generator {
	g := &Generator{
		candidates: opts.Candidates,
		index:      opts.Index,
		lifecycle:  opts.Lifecycle,
		runs:       opts.Runs,
		workers:    opts.Workers,
		recorder:   opts.Recorder,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	if g.workers <= 0 {
		g.workers = 4
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Generate draws specs from the space, persists the ones never seen before
// as GENERATED and appends one generation-run record. Storage failures abort
// the call; duplicates are counted, not errors.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Count <= 0 || len(req.Instruments) == 0 {
		return nil, fmt.Errorf("%w: count %d, %d instruments", ErrInvalidRequest, req.Count, len(req.Instruments))
	}
	if err := req.Space.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var specs []*domain.CandidateSpec
	switch req.Mode {
	case domain.GenerationModeEnumerate:
		specs = Enumerate(req.Space, req.Instruments, req.Count)
	case domain.GenerationModeSample:
		specs = Sample(req.Space, req.Instruments, req.Count, req.Seed)
	default:
		return nil, fmt.Errorf("%w: mode %q", ErrInvalidRequest, req.Mode)
	}

	start := g.now()
	accepted := make([]bool, len(specs))
	var duplicates atomic.Int64

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, spec := range specs {
		eg.Go(func() error {
			ok, err := g.persistWith(egCtx, spec, start, "generated")
			if err != nil {
				return fmt.Errorf("candidate %s: %w", spec.ID(), err)
			}
			accepted[i] = ok
			if !ok {
				duplicates.Add(1)
			}
			if g.recorder != nil {
				g.recorder.CandidateGenerated(ok)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	for i, ok := range accepted {
		if ok {
			res.Accepted = append(res.Accepted, specs[i].ID())
		}
	}

	run := &domain.GenerationRun{
		RunID:       idhash.NewRunID(start),
		AtMs:        start.UnixMilli(),
		Mode:        req.Mode,
		Instruments: append([]string(nil), req.Instruments...),
		Requested:   req.Count,
		Generated:   len(specs),
		Accepted:    len(res.Accepted),
		Duplicates:  int(duplicates.Load()),
	}
	if err := g.runs.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("insert generation run: %w", err)
	}
	res.Run = run

	g.logger.Info("generation complete",
		"run_id", run.RunID,
		"mode", run.Mode,
		"requested", run.Requested,
		"generated", run.Generated,
		"accepted", run.Accepted,
		"duplicates", run.Duplicates,
	)
	return res, nil
}

// Persist claims, stores and registers one sealed spec. Returns false when
// the point was registered before.
func (g *Generator) Persist(ctx context.Context, spec *domain.CandidateSpec, reason string) (bool, error) {
	return g.persistWith(ctx, spec, g.now(), reason)
}

// persistWith accepts a spec exactly once: the writer whose GENERATED entry
// lands in the lifecycle log owns it. A claimed hash without history is left
// over from a writer that failed after its claim; the next writer finishes
// the insert and registration instead of counting a duplicate.
func (g *Generator) persistWith(ctx context.Context, spec *domain.CandidateSpec, at time.Time, reason string) (bool, error) {
	if spec.ParamHash == "" || spec.ParamHash != idhash.ComputeParamHash(spec) {
		return false, fmt.Errorf("%w: spec not sealed", ErrInvalidRequest)
	}

	claimed, err := g.index.Claim(ctx, spec.ParamHash)
	if err != nil {
		return false, fmt.Errorf("claim hash: %w", err)
	}
	if !claimed {
		history, err := g.lifecycle.History(ctx, spec.ID())
		if err != nil {
			return false, fmt.Errorf("load history: %w", err)
		}
		if len(history) > 0 {
			g.logger.Debug("duplicate candidate", "candidate_id", spec.ID())
			return false, nil
		}
		g.logger.Info("completing unregistered candidate", "candidate_id", spec.ID())
	}

	spec.CreatedAtMs = at.UnixMilli()
	if err := g.candidates.Insert(ctx, spec); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return false, fmt.Errorf("insert candidate: %w", err)
	}
	if _, err := g.lifecycle.Register(ctx, spec.ID(), reason); err != nil {
		if errors.Is(err, lifecycle.ErrInvalidTransition) || errors.Is(err, lifecycle.ErrTerminalStage) {
			g.logger.Debug("duplicate candidate", "candidate_id", spec.ID())
			return false, nil
		}
		return false, fmt.Errorf("register lifecycle: %w", err)
	}
	return true, nil
}

// Package engine is the command surface of the edge lab. It wires the
// generator, the validation battery, the lifecycle manager and the manifest
// over one storage set.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"edge-lab/internal/domain"
	"edge-lab/internal/generator"
	"edge-lab/internal/idhash"
	"edge-lab/internal/lifecycle"
	"edge-lab/internal/manifest"
	"edge-lab/internal/simulation"
	"edge-lab/internal/storage"
	"edge-lab/internal/validation"
	"edge-lab/internal/verification"
)

// Engine errors
var (
	// ErrStorageUnavailable wraps any persistence failure. It is the only
	// error that aborts a batch.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotRetryable is returned by Retry for candidates that are not FAILED or SUSPENDED.
	ErrNotRetryable = errors.New("candidate is not retryable")

	// ErrInvalidRange is returned for a malformed validation date range.
	ErrInvalidRange = errors.New("invalid date range")
)

// Recorder receives engine events for metrics. May be nil.
type Recorder interface {
	generator.Recorder
	CandidateValidated(status string, failedGates []string, seconds float64)
	EdgeApproved(tier domain.ConfidenceTier)
	StorageError(op string)
}

// Engine runs generation, validation and promotion.
type Engine struct {
	stores    storage.Set
	lifecycle *lifecycle.Manager
	generator *generator.Generator
	loader    *simulation.Loader
	pipeline  *validation.Pipeline
	manifest  *manifest.Manifest
	verifier  *verification.ReplayVerifier
	workers   int
	recorder  Recorder
	now       func() time.Time
	logger    *slog.Logger
}

// Options contains configuration for creating an Engine.
type Options struct {
	Stores     storage.Set
	Validation validation.Config
	MinTier    domain.ConfidenceTier // manifest floor; "" = MEDIUM
	Consumers  []string              // manifest consumers; nil = manifest.DefaultConsumers
	Workers    int                   // validation and generation workers; <= 0 = 4
	Recorder   Recorder              // optional
	Now        func() time.Time      // nil = time.Now
	Logger     *slog.Logger          // nil = slog.Default()
}

// New creates an engine.
func New(opts Options) *Engine {
	e := &Engine{
		stores:   opts.Stores,
		workers:  opts.Workers,
		recorder: opts.Recorder,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if e.workers <= 0 {
		e.workers = 4
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	var genRecorder generator.Recorder
	if opts.Recorder != nil {
		genRecorder = opts.Recorder
	}

	e.lifecycle = lifecycle.NewManager(lifecycle.ManagerOptions{
		Store:  opts.Stores.Lifecycle,
		Now:    e.now,
		Logger: e.logger,
	})
	e.generator = generator.New(generator.Options{
		Candidates: opts.Stores.Candidates,
		Index:      opts.Stores.Index,
		Lifecycle:  e.lifecycle,
		Runs:       opts.Stores.Runs,
		Workers:    e.workers,
		Recorder:   genRecorder,
		Now:        e.now,
		Logger:     e.logger,
	})
	e.loader = simulation.NewLoader(simulation.LoaderOptions{
		BarStore:     opts.Stores.Bars,
		FeatureStore: opts.Stores.Features,
	})
	e.pipeline = validation.NewPipeline(validation.PipelineOptions{
		Config: opts.Validation,
		Logger: e.logger,
	})
	e.verifier = verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		Candidates: opts.Stores.Candidates,
		Outcomes:   opts.Stores.Outcomes,
		Results:    opts.Stores.Results,
		Loader:     e.loader,
		Battery:    e.pipeline,
		Logger:     e.logger,
	})
	e.manifest = manifest.New(manifest.Options{
		Store:     opts.Stores.Manifest,
		MinTier:   opts.MinTier,
		Consumers: opts.Consumers,
		Now:       e.now,
		Logger:    e.logger,
	})
	return e
}

// Lifecycle exposes the lifecycle manager for read access.
func (e *Engine) Lifecycle() *lifecycle.Manager {
	return e.lifecycle
}

// Generate draws candidates from a parameter space and persists the new ones.
func (e *Engine) Generate(ctx context.Context, req generator.Request) (*generator.Result, error) {
	res, err := e.generator.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, generator.ErrInvalidRequest) {
			return nil, err
		}
		return nil, e.storageErr("generate", err)
	}
	return res, nil
}

// Submit persists one hand-written hypothesis. Returns false when the same
// parameters were submitted before.
func (e *Engine) Submit(ctx context.Context, spec *domain.CandidateSpec) (bool, error) {
	if err := spec.Validate(); err != nil {
		return false, err
	}
	ok, err := e.generator.Persist(ctx, idhash.Seal(spec), "submitted")
	if err != nil {
		return false, e.storageErr("submit", err)
	}
	return ok, nil
}

// Retry creates the next revision of a FAILED or SUSPENDED candidate. The old
// record is left untouched; the new revision starts at GENERATED. Retrying
// the same candidate twice returns the revision created the first time.
func (e *Engine) Retry(ctx context.Context, candidateID, reason string) (*domain.CandidateSpec, error) {
	stage, err := e.lifecycle.Current(ctx, candidateID)
	if err != nil {
		return nil, e.storageErr("retry", err)
	}
	if stage != domain.StageFailed && stage != domain.StageSuspended {
		return nil, fmt.Errorf("%w: %s is %q", ErrNotRetryable, candidateID, stage)
	}

	spec, err := e.stores.Candidates.GetByID(ctx, candidateID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, e.storageErr("retry", err)
	}

	next := idhash.Seal(spec.WithRevision(spec.Revision + 1))
	if reason == "" {
		reason = "retry of " + candidateID
	}
	created, err := e.generator.Persist(ctx, next, reason)
	if err != nil {
		return nil, e.storageErr("retry", err)
	}
	if !created {
		existing, err := e.stores.Candidates.GetByID(ctx, next.ID())
		if err != nil {
			return nil, e.storageErr("retry", err)
		}
		return existing, nil
	}

	e.logger.Info("candidate retried",
		"candidate_id", candidateID,
		"revision_id", next.ID(),
		"revision", next.Revision,
	)
	return next, nil
}

// Stats is a snapshot of the lab's state.
type Stats struct {
	Stages         map[domain.Stage]int          `json:"stages"`
	Manifest       map[domain.ManifestStatus]int `json:"manifest"`
	GenerationRuns int                           `json:"generation_runs"`
	LiveTracking   int                           `json:"live_tracking"`
}

// Stats counts candidates per stage and manifest entries per status.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	stages, err := e.lifecycle.Counts(ctx)
	if err != nil {
		return nil, e.storageErr("stats", err)
	}
	entries, err := e.manifest.List(ctx)
	if err != nil {
		return nil, e.storageErr("stats", err)
	}
	runs, err := e.stores.Runs.List(ctx)
	if err != nil {
		return nil, e.storageErr("stats", err)
	}
	live, err := e.stores.Live.List(ctx)
	if err != nil {
		return nil, e.storageErr("stats", err)
	}

	st := &Stats{
		Stages:         stages,
		Manifest:       make(map[domain.ManifestStatus]int),
		GenerationRuns: len(runs),
		LiveTracking:   len(live),
	}
	for _, entry := range entries {
		st.Manifest[entry.Status]++
	}
	return st, nil
}

// storageErr wraps a persistence failure. Cancellation passes through unwrapped.
func (e *Engine) storageErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if e.recorder != nil {
		e.recorder.StorageError(op)
	}
	e.logger.Error("storage failure", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// lostRace reports whether a transition failed because another writer moved
// the candidate first.
func lostRace(err error) bool {
	return errors.Is(err, lifecycle.ErrInvalidTransition) ||
		errors.Is(err, lifecycle.ErrTerminalStage) ||
		errors.Is(err, storage.ErrConflict)
}

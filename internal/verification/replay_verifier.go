package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"edge-lab/internal/domain"
	"edge-lab/internal/features"
	"edge-lab/internal/storage"
	"edge-lab/internal/validation"
)

var (
	// ErrRunNotFound is returned when the candidate has no outcome for the run.
	ErrRunNotFound = errors.New("validation run not found")

	// ErrReplayFailed wraps a simulation error raised while replaying.
	ErrReplayFailed = errors.New("replay failed")
)

// SessionLoader loads the sessions a candidate is simulated over.
type SessionLoader interface {
	Load(ctx context.Context, spec *domain.CandidateSpec, startDate, endDate string) ([]features.Session, error)
}

// Battery runs the validation battery.
type Battery interface {
	Run(in validation.Input) (*validation.Report, error)
}

// ScenarioCheck is the comparison of one stored scenario result.
type ScenarioCheck struct {
	ScenarioID  string            `json:"scenario_id"`
	Match       bool              `json:"match"`
	Divergences []FieldDivergence `json:"divergences,omitempty"`
}

// Report is the result of replaying one validation run.
type Report struct {
	CandidateID string `json:"candidate_id"`
	RunID       string `json:"run_id"`
	Match       bool   `json:"match"` // outcome and every scenario reproduced

	OutcomeDivergences []FieldDivergence `json:"outcome_divergences,omitempty"`

	Scenarios int             `json:"scenarios"`
	Matched   int             `json:"matched"`
	Divergent int             `json:"divergent"`
	Missing   []string        `json:"missing,omitempty"` // replayed but not stored
	Extra     []string        `json:"extra,omitempty"`   // stored but not replayed
	Checks    []ScenarioCheck `json:"checks"`
}

// Request selects the run to replay. The date range must be the one the run
// was validated over.
type Request struct {
	CandidateID string
	RunID       string // "" = latest run
	StartDate   string
	EndDate     string
}

// ReplayVerifier re-executes stored validation runs.
type ReplayVerifier struct {
	candidates storage.CandidateStore
	outcomes   storage.OutcomeStore
	results    storage.BacktestResultStore
	loader     SessionLoader
	battery    Battery
	logger     *slog.Logger
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	Candidates storage.CandidateStore
	Outcomes   storage.OutcomeStore
	Results    storage.BacktestResultStore
	Loader     SessionLoader
	Battery    Battery
	Logger     *slog.Logger // nil = slog.Default()
}

// NewReplayVerifier creates a ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayVerifier{
		candidates: opts.Candidates,
		outcomes:   opts.Outcomes,
		results:    opts.Results,
		loader:     opts.Loader,
		battery:    opts.Battery,
		logger:     logger,
	}
}

// Verify replays one run with its original run id and clock and compares
// every stored scenario result and the outcome verdict.
func (v *ReplayVerifier) Verify(ctx context.Context, req Request) (*Report, error) {
	// 1. Stored state
	spec, err := v.candidates.GetByID(ctx, req.CandidateID)
	if err != nil {
		return nil, fmt.Errorf("load candidate %s: %w", req.CandidateID, err)
	}
	stored, err := v.storedOutcome(ctx, req.CandidateID, req.RunID)
	if err != nil {
		return nil, err
	}
	all, err := v.results.GetByCandidateID(ctx, req.CandidateID)
	if err != nil {
		return nil, fmt.Errorf("load backtest results %s: %w", req.CandidateID, err)
	}
	storedResults := make(map[string]*domain.BacktestResult)
	for _, r := range all {
		if r.RunID == stored.RunID {
			storedResults[r.ScenarioID] = r
		}
	}

	// 2. Replay
	sessions, err := v.loader.Load(ctx, spec, req.StartDate, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("load sessions %s: %w", req.CandidateID, err)
	}
	rep, err := v.battery.Run(validation.Input{
		Spec:      spec,
		Sessions:  sessions,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		RunID:     stored.RunID,
		NowMs:     stored.CreatedAtMs,
	})
	if err != nil && rep == nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrReplayFailed, req.CandidateID, err)
	}

	// 3. Compare
	out := &Report{
		CandidateID:        req.CandidateID,
		RunID:              stored.RunID,
		OutcomeDivergences: CompareOutcomes(stored, rep.Outcome),
	}
	replayed := make(map[string]bool, len(rep.Results))
	for _, r := range rep.Results {
		replayed[r.ScenarioID] = true
		s, ok := storedResults[r.ScenarioID]
		if !ok {
			out.Missing = append(out.Missing, r.ScenarioID)
			continue
		}
		check := ScenarioCheck{ScenarioID: r.ScenarioID, Divergences: CompareResults(s, r)}
		check.Match = len(check.Divergences) == 0
		if check.Match {
			out.Matched++
		} else {
			out.Divergent++
		}
		out.Checks = append(out.Checks, check)
	}
	for id := range storedResults {
		if !replayed[id] {
			out.Extra = append(out.Extra, id)
		}
	}
	sort.Strings(out.Missing)
	sort.Strings(out.Extra)
	sort.Slice(out.Checks, func(i, j int) bool { return out.Checks[i].ScenarioID < out.Checks[j].ScenarioID })

	out.Scenarios = len(out.Checks)
	out.Match = out.Divergent == 0 && len(out.Missing) == 0 && len(out.Extra) == 0 && len(out.OutcomeDivergences) == 0

	v.logger.Info("replay verified",
		"candidate_id", req.CandidateID,
		"run_id", stored.RunID,
		"match", out.Match,
		"matched", out.Matched,
		"divergent", out.Divergent,
		"missing", len(out.Missing),
		"extra", len(out.Extra),
	)
	return out, nil
}

// storedOutcome returns the outcome of runID, or the latest one when runID is empty.
func (v *ReplayVerifier) storedOutcome(ctx context.Context, candidateID, runID string) (*domain.ValidationOutcome, error) {
	outcomes, err := v.outcomes.GetByCandidateID(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("load outcomes %s: %w", candidateID, err)
	}
	if len(outcomes) == 0 {
		return nil, fmt.Errorf("%w: %s has no validation outcome", ErrRunNotFound, candidateID)
	}
	if runID == "" {
		return outcomes[len(outcomes)-1], nil
	}
	for _, o := range outcomes {
		if o.RunID == runID {
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: %s run %s", ErrRunNotFound, candidateID, runID)
}

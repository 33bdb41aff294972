package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-lab/internal/domain"
	"edge-lab/internal/fixtures"
	"edge-lab/internal/generator"
	"edge-lab/internal/idhash"
	"edge-lab/internal/manifest"
	"edge-lab/internal/storage"
	"edge-lab/internal/storage/memory"
	"edge-lab/internal/validation"
	"edge-lab/internal/verification"
)

type clock struct{ ms atomic.Int64 }

func newClock() *clock {
	c := &clock{}
	c.ms.Store(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli())
	return c
}

func (c *clock) Now() time.Time { return time.UnixMilli(c.ms.Add(1)) }

type harness struct {
	eng    *Engine
	stores storage.Set
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	stores := memory.NewSet()
	require.NoError(t, stores.Bars.InsertBulk(context.Background(), fixtures.RegressionBars()))
	eng := New(Options{
		Stores:     stores,
		Validation: validation.DefaultConfig(),
		Workers:    3,
		Now:        newClock().Now,
	})
	return &harness{eng: eng, stores: stores}
}

func (h *harness) submit(t *testing.T, spec *domain.CandidateSpec) string {
	t.Helper()
	ok, err := h.eng.Submit(context.Background(), spec)
	require.NoError(t, err)
	require.True(t, ok)
	return spec.ID()
}

func (h *harness) stage(t *testing.T, id string) domain.Stage {
	t.Helper()
	s, err := h.eng.Lifecycle().Current(context.Background(), id)
	require.NoError(t, err)
	return s
}

// survivor moves a submitted candidate to SURVIVOR with a passing outcome,
// bypassing the battery.
func (h *harness) survivor(t *testing.T, spec *domain.CandidateSpec, tier domain.ConfidenceTier) string {
	t.Helper()
	ctx := context.Background()
	id := h.submit(t, spec)
	_, err := h.eng.Lifecycle().Transition(ctx, id, domain.StageTesting, "test")
	require.NoError(t, err)
	require.NoError(t, h.stores.Outcomes.Insert(ctx, &domain.ValidationOutcome{
		OutcomeID:     idhash.ComputeOutcomeID(id, "run-x"),
		CandidateID:   id,
		RunID:         "run-x",
		Passed:        true,
		SurvivalScore: 75,
		Tier:          tier,
		Baseline:      domain.BacktestResult{CandidateID: id, TradeCount: 120, Wins: 66, AvgR: 0.3, TotalR: 36},
		CreatedAtMs:   1,
	}))
	_, err = h.eng.Lifecycle().Transition(ctx, id, domain.StageSurvivor, "test")
	require.NoError(t, err)
	return id
}

func stages(history []*domain.Transition) []domain.Stage {
	out := make([]domain.Stage, len(history))
	for i, t := range history {
		out[i] = t.To
	}
	return out
}

func zeroTradeCandidate() *domain.CandidateSpec {
	spec := fixtures.RegressionCandidate()
	spec.Filters = domain.FilterSet{RangeATRMin: 1000}
	return idhash.Seal(spec)
}

func TestValidate_ZeroTradesFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submit(t, zeroTradeCandidate())

	sum, err := h.eng.Validate(ctx, ValidateRequest{StartDate: "2022-03-01", EndDate: "2022-03-31"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Results, 1)
	assert.Equal(t, "zero trades", sum.Results[0].Reason)

	history, err := h.eng.Lifecycle().History(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []domain.Stage{domain.StageGenerated, domain.StageTesting, domain.StageFailed}, stages(history))
	assert.Equal(t, "zero trades", history[2].Reason)

	outcomes, err := h.stores.Outcomes.GetByCandidateID(ctx, id)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, sum.RunID, outcomes[0].RunID)
	assert.Equal(t, []string{"zero trades"}, outcomes[0].FailureReasons)

	audit, err := h.stores.Audit.GetByCandidateID(ctx, id)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, domain.TestCategoryBaseline, audit[0].Category)
}

func TestValidate_NonPositiveBaselineFails(t *testing.T) {
	h := newHarness(t)
	id := h.submit(t, fixtures.RegressionCandidate())

	day := fixtures.RegressionStartDate
	sum, err := h.eng.Validate(context.Background(), ValidateRequest{StartDate: day, EndDate: day})
	require.NoError(t, err)
	require.Len(t, sum.Results, 1)
	assert.Equal(t, StatusFailed, sum.Results[0].Status)
	assert.Equal(t, "non-positive baseline", sum.Results[0].Reason)
	assert.Equal(t, domain.StageFailed, h.stage(t, id))
}

func TestValidate_DataUnavailableSkips(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	other := fixtures.RegressionCandidate()
	other.Instrument = "NODATA"
	noBars := h.submit(t, idhash.Seal(other))

	sum, err := h.eng.Validate(ctx, ValidateRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, domain.StageGenerated, h.stage(t, noBars))

	// Bars exist, but none inside the requested range.
	inRange := h.submit(t, fixtures.RegressionCandidate())
	sum, err = h.eng.Validate(ctx, ValidateRequest{StartDate: "2030-01-01", EndDate: "2030-01-31"})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, domain.StageGenerated, h.stage(t, inRange))

	outcomes, err := h.stores.Outcomes.GetByCandidateID(ctx, inRange)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestValidate_SimulationErrorRecordsOutcome(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Stored around Submit, which would reject the spec.
	spec := fixtures.RegressionCandidate()
	spec.Exit = domain.TimeExit{HoldBars: 0}
	idhash.Seal(spec)
	require.NoError(t, h.stores.Candidates.Insert(ctx, spec))
	_, err := h.eng.Lifecycle().Register(ctx, spec.ID(), "test")
	require.NoError(t, err)

	sum, err := h.eng.Validate(ctx, ValidateRequest{StartDate: "2022-03-01", EndDate: "2022-03-31"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Results, 1)
	assert.Contains(t, sum.Results[0].Reason, "baseline:")
	assert.Equal(t, domain.StageFailed, h.stage(t, spec.ID()))

	outcomes, err := h.stores.Outcomes.GetByCandidateID(ctx, spec.ID())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, sum.RunID, outcomes[0].RunID)
	assert.False(t, outcomes[0].Passed)
	require.Len(t, outcomes[0].Gates, 1)
	assert.Equal(t, domain.GateBaseline, outcomes[0].Gates[0].Gate)

	audit, err := h.stores.Audit.GetByCandidateID(ctx, spec.ID())
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, domain.TestCategoryAborted, audit[0].Category)

	history, err := h.eng.Lifecycle().History(ctx, spec.ID())
	require.NoError(t, err)
	assert.Equal(t, sum.Results[0].Reason, history[len(history)-1].Reason)
}

func TestValidate_InvalidRange(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.Validate(context.Background(), ValidateRequest{StartDate: "2022-02-01", EndDate: "2022-01-01"})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = h.eng.Validate(context.Background(), ValidateRequest{StartDate: "yesterday"})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestValidate_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t)
	id := h.submit(t, zeroTradeCandidate())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := h.eng.Validate(ctx, ValidateRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, sum)
	assert.True(t, sum.Cancelled)
	assert.Zero(t, sum.Processed)
	assert.Equal(t, domain.StageGenerated, h.stage(t, id))
}

func TestValidate_ResumesCandidateLeftInTesting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submit(t, zeroTradeCandidate())
	_, err := h.eng.Lifecycle().Transition(ctx, id, domain.StageTesting, "interrupted run")
	require.NoError(t, err)

	sum, err := h.eng.Validate(ctx, ValidateRequest{StartDate: "2022-03-01", EndDate: "2022-03-31"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)

	history, err := h.eng.Lifecycle().History(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []domain.Stage{domain.StageGenerated, domain.StageTesting, domain.StageFailed}, stages(history))
}

func TestValidate_ConcurrentBatchesTestEachCandidateOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.eng.Generate(ctx, generator.Request{
		Mode:        domain.GenerationModeEnumerate,
		Count:       12,
		Instruments: []string{fixtures.RegressionInstrument},
		Space:       generator.DefaultSpace(),
	})
	require.NoError(t, err)
	require.Len(t, res.Accepted, 12)

	day := fixtures.RegressionStartDate
	var wg sync.WaitGroup
	sums := make([]*ValidateSummary, 3)
	for i := range sums {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := h.eng.Validate(ctx, ValidateRequest{StartDate: day, EndDate: day})
			assert.NoError(t, err)
			sums[i] = s
		}()
	}
	wg.Wait()

	concluded := 0
	for _, s := range sums {
		require.NotNil(t, s)
		concluded += s.Survivors + s.Failed
	}
	assert.Equal(t, 12, concluded)

	for _, id := range res.Accepted {
		history, err := h.eng.Lifecycle().History(ctx, id)
		require.NoError(t, err)
		assert.Len(t, history, 3, id)
	}
}

func TestValidate_FullRegressionRun(t *testing.T) {
	if testing.Short() {
		t.Skip("full battery over the regression fixture")
	}
	h := newHarness(t)
	ctx := context.Background()
	id := h.submit(t, fixtures.RegressionCandidate())

	sum, err := h.eng.Validate(ctx, ValidateRequest{})
	require.NoError(t, err)
	require.Len(t, sum.Results, 1)

	outcomes, err := h.stores.Outcomes.GetByCandidateID(ctx, id)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	o := outcomes[0]
	assert.Equal(t, fixtures.RegressionSessions, o.Baseline.TradeCount)

	want := domain.StageFailed
	if o.Passed {
		want = domain.StageSurvivor
	}
	assert.Equal(t, want, h.stage(t, id))

	results, err := h.stores.Results.GetByCandidateID(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, sum.RunID, r.RunID)
	}
}

func TestApprove_SurvivorBecomesEdge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.survivor(t, fixtures.RegressionCandidate(), domain.TierHigh)

	sum, err := h.eng.Approve(ctx, "")
	require.NoError(t, err)
	require.Len(t, sum.Approved, 1)
	assert.Equal(t, idhash.EdgeCode(id), sum.Approved[0].EdgeCode)
	assert.Equal(t, 1, sum.Approved[0].Version)
	assert.Equal(t, domain.StageApproved, h.stage(t, id))

	sum, err = h.eng.Approve(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, sum.Approved)
}

func TestApprove_TierGate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	low := h.survivor(t, zeroTradeCandidate(), domain.TierLow)
	high := h.survivor(t, fixtures.RegressionCandidate(), domain.TierHigh)

	sum, err := h.eng.Approve(ctx, domain.TierVeryHigh)
	require.NoError(t, err)
	assert.Empty(t, sum.Approved)
	assert.Len(t, sum.Skipped, 2)

	// A request below the manifest floor is raised to it.
	sum, err = h.eng.Approve(ctx, domain.TierLow)
	require.NoError(t, err)
	require.Len(t, sum.Approved, 1)
	assert.Equal(t, high, sum.Approved[0].CandidateID)
	assert.Equal(t, domain.StageSurvivor, h.stage(t, low))
}

func TestApprove_CompletesAfterManifestWrite(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	spec := fixtures.RegressionCandidate()
	id := h.survivor(t, spec, domain.TierHigh)

	// Entry written, lifecycle not yet moved.
	outcomes, err := h.stores.Outcomes.GetByCandidateID(ctx, id)
	require.NoError(t, err)
	_, err = h.eng.manifest.Approve(ctx, spec, outcomes[0])
	require.NoError(t, err)

	sum, err := h.eng.Approve(ctx, "")
	require.NoError(t, err)
	require.Len(t, sum.Approved, 1)
	assert.Equal(t, domain.StageApproved, h.stage(t, id))

	entries, err := h.stores.Manifest.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSync_ActivatesOnceAllConsumersSynced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.survivor(t, fixtures.RegressionCandidate(), domain.TierHigh)
	_, err := h.eng.Approve(ctx, "")
	require.NoError(t, err)

	res, err := h.eng.Sync(ctx, id, "trading")
	require.NoError(t, err)
	assert.False(t, res.Activated)
	assert.Equal(t, domain.ManifestApproved, res.Status)
	assert.Equal(t, domain.StageApproved, h.stage(t, id))

	res, err = h.eng.Sync(ctx, id, "docs")
	require.NoError(t, err)
	assert.True(t, res.Activated)
	assert.Equal(t, domain.ManifestActive, res.Status)
	assert.Equal(t, domain.StageActive, h.stage(t, id))

	res, err = h.eng.Sync(ctx, id, "docs")
	require.NoError(t, err)
	assert.False(t, res.Activated)

	live, err := h.stores.Live.List(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, domain.LiveTrackingPending, live[0].Status)
	assert.Equal(t, fixtures.RegressionInstrument, live[0].Instrument)

	_, err = h.eng.Sync(ctx, id, "billing")
	assert.ErrorIs(t, err, manifest.ErrUnknownConsumer)
	_, err = h.eng.Sync(ctx, "missing", "docs")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSuspendAndRetry_NewVersionInLineage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	spec := fixtures.RegressionCandidate()
	id := h.survivor(t, spec, domain.TierHigh)
	_, err := h.eng.Approve(ctx, "")
	require.NoError(t, err)

	_, err = h.eng.Retry(ctx, id, "")
	assert.ErrorIs(t, err, ErrNotRetryable)

	require.NoError(t, h.eng.Suspend(ctx, id, "drift detected"))
	assert.Equal(t, domain.StageSuspended, h.stage(t, id))
	entry, err := h.stores.Manifest.GetByParamHash(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ManifestSuspended, entry.Status)

	next, err := h.eng.Retry(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, 1, next.Revision)
	assert.NotEqual(t, id, next.ID())
	assert.Equal(t, idhash.ComputeLineageHash(spec), idhash.ComputeLineageHash(next))
	assert.Equal(t, domain.StageGenerated, h.stage(t, next.ID()))
	assert.Equal(t, domain.StageSuspended, h.stage(t, id))

	again, err := h.eng.Retry(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, next.ID(), again.ID())

	// Promote the revision by hand and approve it as version 2.
	_, err = h.eng.Lifecycle().Transition(ctx, next.ID(), domain.StageTesting, "test")
	require.NoError(t, err)
	require.NoError(t, h.stores.Outcomes.Insert(ctx, &domain.ValidationOutcome{
		OutcomeID:   idhash.ComputeOutcomeID(next.ID(), "run-y"),
		CandidateID: next.ID(),
		RunID:       "run-y",
		Passed:      true,
		Tier:        domain.TierMedium,
	}))
	_, err = h.eng.Lifecycle().Transition(ctx, next.ID(), domain.StageSurvivor, "test")
	require.NoError(t, err)

	sum, err := h.eng.Approve(ctx, "")
	require.NoError(t, err)
	require.Len(t, sum.Approved, 1)
	assert.Equal(t, 2, sum.Approved[0].Version)
}

func TestSuspend_RequiresManifestEntry(t *testing.T) {
	h := newHarness(t)
	id := h.survivor(t, fixtures.RegressionCandidate(), domain.TierHigh)
	err := h.eng.Suspend(context.Background(), id, "drift")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, domain.StageSurvivor, h.stage(t, id))
}

func TestGenerate_RepeatDoesNotDuplicateManifest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := generator.Request{
		Mode:        domain.GenerationModeEnumerate,
		Count:       4,
		Instruments: []string{fixtures.RegressionInstrument},
		Space:       generator.DefaultSpace(),
	}

	first, err := h.eng.Generate(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.Accepted, 4)

	id := first.Accepted[0]
	_, err = h.eng.Lifecycle().Transition(ctx, id, domain.StageTesting, "test")
	require.NoError(t, err)
	require.NoError(t, h.stores.Outcomes.Insert(ctx, &domain.ValidationOutcome{
		OutcomeID: "o-1", CandidateID: id, RunID: "r", Passed: true, Tier: domain.TierHigh,
	}))
	_, err = h.eng.Lifecycle().Transition(ctx, id, domain.StageSurvivor, "test")
	require.NoError(t, err)
	_, err = h.eng.Approve(ctx, "")
	require.NoError(t, err)

	second, err := h.eng.Generate(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, second.Accepted)
	assert.Equal(t, 4, second.Run.Duplicates)

	entries, err := h.stores.Manifest.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, domain.StageApproved, h.stage(t, id))
}

func TestStatsAndExport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.survivor(t, fixtures.RegressionCandidate(), domain.TierHigh)
	h.submit(t, zeroTradeCandidate())
	_, err := h.eng.Approve(ctx, "")
	require.NoError(t, err)

	st, err := h.eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Stages[domain.StageApproved])
	assert.Equal(t, 1, st.Stages[domain.StageGenerated])
	assert.Zero(t, st.Stages[domain.StageFailed])
	assert.Equal(t, 1, st.Manifest[domain.ManifestApproved])

	data, err := h.eng.Export(ctx)
	require.NoError(t, err)
	doc, err := manifest.UnmarshalYAML(data)
	require.NoError(t, err)
	require.Len(t, doc.Edges, 1)
	assert.Equal(t, id, doc.Edges[0].ParamHash)
}

func TestImportBars_StoresFeatures(t *testing.T) {
	stores := memory.NewSet()
	eng := New(Options{Stores: stores, Validation: validation.DefaultConfig(), Now: newClock().Now})
	ctx := context.Background()

	w := fixtures.RegressionWindow()
	sum, err := eng.ImportBars(ctx, fixtures.RegressionBars(), []domain.TimeWindow{w})
	require.NoError(t, err)
	assert.Equal(t, fixtures.RegressionSessions, sum.Features[w.Key()])

	feats, err := stores.Features.GetByWindow(ctx, fixtures.RegressionInstrument, w.Key(), "2022-01-01", "2022-01-31")
	require.NoError(t, err)
	assert.NotEmpty(t, feats)

	_, err = eng.ImportBars(ctx, fixtures.RegressionBars(), nil)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestVerify_ReplaysValidationRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submit(t, fixtures.RegressionCandidate())

	req := ValidateRequest{StartDate: "2022-03-01", EndDate: "2022-04-29"}
	sum, err := h.eng.Validate(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Processed)

	rep, err := h.eng.Verify(ctx, verification.Request{CandidateID: id, StartDate: req.StartDate, EndDate: req.EndDate})
	require.NoError(t, err)
	assert.Equal(t, sum.RunID, rep.RunID)
	assert.True(t, rep.Match, "%+v", rep)
	assert.Positive(t, rep.Scenarios)

	_, err = h.eng.Verify(ctx, verification.Request{CandidateID: id, RunID: "nope"})
	assert.ErrorIs(t, err, verification.ErrRunNotFound)

	_, err = h.eng.Verify(ctx, verification.Request{CandidateID: id, StartDate: "2022-05-01", EndDate: "2022-04-01"})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestReport_AfterApproval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.survivor(t, fixtures.RegressionCandidate(), domain.TierHigh)
	_, err := h.eng.Approve(ctx, domain.TierMedium)
	require.NoError(t, err)

	r, err := h.eng.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Summary.Validated)
	require.Len(t, r.Candidates, 1)
	assert.Equal(t, id, r.Candidates[0].CandidateID)
	assert.Equal(t, domain.StageApproved, r.Candidates[0].Stage)
	require.Len(t, r.Edges, 1)
	assert.Equal(t, idhash.EdgeCode(id), r.Edges[0].EdgeCode)
}

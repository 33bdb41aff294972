package storage

// Set bundles every store the engine reads or writes. A backend provides
// all of them; a deployment may mix backends per field.
type Set struct {
	Candidates CandidateStore
	Index      HashIndex
	Lifecycle  LifecycleStore
	Outcomes   OutcomeStore
	Manifest   ManifestStore
	Runs       GenerationRunStore
	Audit      TestAuditStore
	Live       LiveTrackingStore
	Bars       BarStore
	Features   FeatureStore
	Results    BacktestResultStore
}

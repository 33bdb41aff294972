package memory

import "edge-lab/internal/storage"

// NewSet returns a storage set backed entirely by in-memory stores.
func NewSet() storage.Set {
	return storage.Set{
		Candidates: NewCandidateStore(),
		Index:      NewHashIndex(),
		Lifecycle:  NewLifecycleStore(),
		Outcomes:   NewOutcomeStore(),
		Manifest:   NewManifestStore(),
		Runs:       NewGenerationRunStore(),
		Audit:      NewTestAuditStore(),
		Live:       NewLiveTrackingStore(),
		Bars:       NewBarStore(),
		Features:   NewFeatureStore(),
		Results:    NewBacktestResultStore(),
	}
}

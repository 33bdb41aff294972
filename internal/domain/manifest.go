package domain

// ManifestStatus is the downstream-facing status of an approved edge.
type ManifestStatus string

// Manifest statuses.
const (
	ManifestApproved  ManifestStatus = "APPROVED"
	ManifestActive    ManifestStatus = "ACTIVE"
	ManifestSuspended ManifestStatus = "SUSPENDED"
)

// MetricsSnapshot freezes validation metrics at approval time.
type MetricsSnapshot struct {
	TradeCount    int            `json:"trade_count" yaml:"trade_count"`
	WinRate       float64        `json:"win_rate" yaml:"win_rate"`
	AvgR          float64        `json:"avg_r" yaml:"avg_r"`
	TotalR        float64        `json:"total_r" yaml:"total_r"`
	MaxDrawdownR  float64        `json:"max_drawdown_r" yaml:"max_drawdown_r"`
	ProfitFactor  float64        `json:"profit_factor" yaml:"profit_factor"`
	SurvivalScore float64        `json:"survival_score" yaml:"survival_score"`
	Tier          ConfidenceTier `json:"tier" yaml:"tier"`
}

// ManifestEntry is an approved, frozen edge.
// Corresponds to edge_manifest table; param_hash is unique.
type ManifestEntry struct {
	ParamHash    string // PRIMARY KEY
	LineageHash  string // rule hash without revision; groups versions
	EdgeCode     string // short human code, "EDGE-" + base58
	Version      int    // 1-based within the lineage
	Spec         *CandidateSpec
	Metrics      MetricsSnapshot
	OutcomeID    string // validation outcome the approval was based on
	Status       ManifestStatus
	ApprovedAtMs int64
	SyncFlags    map[string]bool // consumer -> ingested
}

// AllSynced reports whether every listed consumer has ingested the entry.
func (e *ManifestEntry) AllSynced(consumers []string) bool {
	for _, c := range consumers {
		if !e.SyncFlags[c] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy; the spec is shared since it is immutable.
func (e *ManifestEntry) Clone() *ManifestEntry {
	out := *e
	out.SyncFlags = make(map[string]bool, len(e.SyncFlags))
	for k, v := range e.SyncFlags {
		out.SyncFlags[k] = v
	}
	return &out
}

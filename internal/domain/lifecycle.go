package domain

// Stage is a candidate's lifecycle stage.
type Stage string

// Lifecycle stages.
const (
	StageGenerated Stage = "GENERATED"
	StageTesting   Stage = "TESTING"
	StageFailed    Stage = "FAILED"
	StageSurvivor  Stage = "SURVIVOR"
	StageApproved  Stage = "APPROVED"
	StageActive    Stage = "ACTIVE"
	StageSuspended Stage = "SUSPENDED"
)

// AllStages lists every stage in graph order.
var AllStages = []Stage{
	StageGenerated, StageTesting, StageFailed, StageSurvivor,
	StageApproved, StageActive, StageSuspended,
}

// IsTerminal returns true if no transition leaves the stage for this version.
func (s Stage) IsTerminal() bool {
	return s == StageFailed || s == StageSuspended
}

// IsValid returns true if s is a known stage.
func (s Stage) IsValid() bool {
	switch s {
	case StageGenerated, StageTesting, StageFailed, StageSurvivor,
		StageApproved, StageActive, StageSuspended:
		return true
	default:
		return false
	}
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// Transition is one append-only lifecycle history entry.
// Corresponds to lifecycle_transitions table; (candidate_id, seq) is unique.
type Transition struct {
	CandidateID string
	Seq         int   // 0-based position in the candidate's history
	From        Stage // empty for the first entry
	To          Stage
	AtMs        int64  // transition timestamp (ms)
	Reason      string // free-text cause
}

// CurrentStage derives the stage from an ordered history.
// Returns "" for an empty history.
func CurrentStage(history []*Transition) Stage {
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].To
}

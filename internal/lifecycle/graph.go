// Package lifecycle owns candidate stage transitions. The current stage is
// never stored on its own; it is the target of the last entry in an
// append-only transition log.
package lifecycle

import (
	"errors"
	"fmt"

	"edge-lab/internal/domain"
)

// Lifecycle errors
var (
	// ErrInvalidTransition is returned for an edge not in the stage graph.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrTerminalStage is returned when the candidate is FAILED or SUSPENDED.
	// A retry requires a new candidate revision.
	ErrTerminalStage = errors.New("candidate is in a terminal stage")
)

// graph lists the permitted successors of each stage. The empty stage is the
// state of a candidate with no history.
var graph = map[domain.Stage][]domain.Stage{
	"":                    {domain.StageGenerated},
	domain.StageGenerated: {domain.StageTesting},
	domain.StageTesting:   {domain.StageFailed, domain.StageSurvivor},
	domain.StageSurvivor:  {domain.StageApproved},
	domain.StageApproved:  {domain.StageActive, domain.StageSuspended},
	domain.StageActive:    {domain.StageSuspended},
	domain.StageFailed:    nil,
	domain.StageSuspended: nil,
}

// Successors returns the stages reachable in one step from s.
func Successors(s domain.Stage) []domain.Stage {
	next := graph[s]
	out := make([]domain.Stage, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from → to is an edge of the graph.
func CanTransition(from, to domain.Stage) bool {
	for _, s := range graph[from] {
		if s == to {
			return true
		}
	}
	return false
}

// checkTransition classifies a rejected edge.
func checkTransition(from, to domain.Stage) error {
	if CanTransition(from, to) {
		return nil
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminalStage, from)
	}
	if from == "" {
		return fmt.Errorf("%w: no history, cannot enter %s", ErrInvalidTransition, to)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// ValidateHistory checks that a history is a contiguous walk of the graph
// starting from no stage.
func ValidateHistory(history []*domain.Transition) error {
	var prev domain.Stage
	for i, t := range history {
		if t.Seq != i {
			return fmt.Errorf("%w: entry %d has seq %d", ErrInvalidTransition, i, t.Seq)
		}
		if t.From != prev {
			return fmt.Errorf("%w: entry %d from %q, previous stage %q", ErrInvalidTransition, i, t.From, prev)
		}
		if err := checkTransition(t.From, t.To); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		prev = t.To
	}
	return nil
}

package lifecycle

import (
	"errors"
	"testing"

	"edge-lab/internal/domain"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to domain.Stage
		want     bool
	}{
		{"", domain.StageGenerated, true},
		{"", domain.StageTesting, false},
		{domain.StageGenerated, domain.StageTesting, true},
		{domain.StageGenerated, domain.StageSurvivor, false}, // skip
		{domain.StageTesting, domain.StageFailed, true},
		{domain.StageTesting, domain.StageSurvivor, true},
		{domain.StageTesting, domain.StageGenerated, false}, // revert
		{domain.StageSurvivor, domain.StageApproved, true},
		{domain.StageSurvivor, domain.StageActive, false},
		{domain.StageApproved, domain.StageActive, true},
		{domain.StageApproved, domain.StageSuspended, true},
		{domain.StageActive, domain.StageSuspended, true},
		{domain.StageActive, domain.StageApproved, false},
		{domain.StageFailed, domain.StageTesting, false},
		{domain.StageSuspended, domain.StageActive, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStagesHaveNoSuccessors(t *testing.T) {
	for _, s := range domain.AllStages {
		if s.IsTerminal() != (len(Successors(s)) == 0) {
			t.Errorf("stage %s: terminal=%v, successors=%v", s, s.IsTerminal(), Successors(s))
		}
	}
}

func TestValidateHistory(t *testing.T) {
	walk := func(stages ...domain.Stage) []*domain.Transition {
		var out []*domain.Transition
		var prev domain.Stage
		for i, s := range stages {
			out = append(out, &domain.Transition{CandidateID: "c", Seq: i, From: prev, To: s})
			prev = s
		}
		return out
	}

	valid := walk(domain.StageGenerated, domain.StageTesting, domain.StageSurvivor,
		domain.StageApproved, domain.StageActive, domain.StageSuspended)
	if err := ValidateHistory(valid); err != nil {
		t.Errorf("valid walk rejected: %v", err)
	}

	skipped := walk(domain.StageGenerated, domain.StageSurvivor)
	if err := ValidateHistory(skipped); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("skip: got %v, want ErrInvalidTransition", err)
	}

	afterFail := walk(domain.StageGenerated, domain.StageTesting, domain.StageFailed, domain.StageTesting)
	if err := ValidateHistory(afterFail); !errors.Is(err, ErrTerminalStage) {
		t.Errorf("after fail: got %v, want ErrTerminalStage", err)
	}

	gap := walk(domain.StageGenerated, domain.StageTesting)
	gap[1].Seq = 2
	if err := ValidateHistory(gap); err == nil {
		t.Error("seq gap accepted")
	}
}

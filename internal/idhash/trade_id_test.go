package idhash

import (
	"testing"
	"time"
)

func TestComputeTradeID(t *testing.T) {
	tests := []struct {
		name           string
		candidateID    string
		scenarioID     string
		sessionDate    string
		decisionTimeMs int64
		wantLen        int // hash length should be 64
	}{
		{
			name:           "baseline trade",
			candidateID:    "abc123def456",
			scenarioID:     "baseline",
			sessionDate:    "2023-03-14",
			decisionTimeMs: 1678800900000,
			wantLen:        64,
		},
		{
			name:           "cost scenario trade",
			candidateID:    "xyz789ghi012",
			scenarioID:     "cost_2tick",
			sessionDate:    "2023-03-15",
			decisionTimeMs: 1678887300000,
			wantLen:        64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTradeID(tt.candidateID, tt.scenarioID, tt.sessionDate, tt.decisionTimeMs)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeTradeID() length = %d, want %d", len(got), tt.wantLen)
			}

			// Verify determinism: same inputs should produce same output
			got2 := ComputeTradeID(tt.candidateID, tt.scenarioID, tt.sessionDate, tt.decisionTimeMs)
			if got != got2 {
				t.Errorf("ComputeTradeID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeTradeID_DifferentInputs(t *testing.T) {
	base := ComputeTradeID("cand", "baseline", "2023-03-14", 1000)

	if base == ComputeTradeID("cand", "cost_1tick", "2023-03-14", 1000) {
		t.Error("Different scenario should produce different hash")
	}
	if base == ComputeTradeID("cand", "baseline", "2023-03-15", 1000) {
		t.Error("Different session should produce different hash")
	}
	if base == ComputeTradeID("cand", "baseline", "2023-03-14", 2000) {
		t.Error("Different decision time should produce different hash")
	}
}

func TestComputeOutcomeID(t *testing.T) {
	a := ComputeOutcomeID("cand", "01HRUN1")
	b := ComputeOutcomeID("cand", "01HRUN2")

	if len(a) != 64 {
		t.Errorf("ComputeOutcomeID() length = %d, want 64", len(a))
	}
	if a == b {
		t.Error("each validation run must produce a distinct outcome id")
	}
	if a != ComputeOutcomeID("cand", "01HRUN1") {
		t.Error("ComputeOutcomeID() not deterministic")
	}
}

func TestNewRunID(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)

	a := NewRunID(at)
	b := NewRunID(at)
	if len(a) != 26 {
		t.Errorf("len(run id) = %d, want 26", len(a))
	}
	if !(a < b) {
		t.Errorf("run ids not increasing within one millisecond: %s, %s", a, b)
	}

	got, err := RunTime(a)
	if err != nil {
		t.Fatalf("RunTime: %v", err)
	}
	if !got.Equal(at) {
		t.Errorf("RunTime = %v, want %v", got, at)
	}
}

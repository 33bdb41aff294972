package idhash

import (
	"strings"
	"testing"

	"edge-lab/internal/domain"
)

func testSpec() *domain.CandidateSpec {
	return &domain.CandidateSpec{
		Instrument: "ES",
		Window: domain.TimeWindow{
			SessionTZ:          "America/New_York",
			AnchorMinute:       570,
			RangeMinutes:       5,
			EntryCutoffMinutes: 60,
			SessionMinutes:     390,
		},
		Entry:   domain.CloseConfirmEntry{Confirmations: 1},
		Exit:    domain.FixedMultipleExit{Target: 1.5},
		Risk:    domain.RangeMidpointStop{},
		Filters: domain.FilterSet{},
	}
}

func TestComputeParamHash(t *testing.T) {
	got := ComputeParamHash(testSpec())
	if len(got) != 64 {
		t.Errorf("ComputeParamHash() length = %d, want 64", len(got))
	}

	// Verify determinism: same inputs should produce same output
	if got2 := ComputeParamHash(testSpec()); got != got2 {
		t.Errorf("ComputeParamHash() not deterministic: %s != %s", got, got2)
	}
}

func TestComputeParamHash_IgnoresDerivedFields(t *testing.T) {
	a := testSpec()
	b := testSpec()
	b.ParamHash = "stale"
	b.CreatedAtMs = 1704067200000

	if ComputeParamHash(a) != ComputeParamHash(b) {
		t.Error("hash must depend only on rule-defining fields")
	}
}

func TestComputeParamHash_DifferentInputs(t *testing.T) {
	base := ComputeParamHash(testSpec())

	variants := map[string]func(c *domain.CandidateSpec){
		"instrument":    func(c *domain.CandidateSpec) { c.Instrument = "NQ" },
		"range minutes": func(c *domain.CandidateSpec) { c.Window.RangeMinutes = 15 },
		"entry kind":    func(c *domain.CandidateSpec) { c.Entry = domain.BreakoutEntry{} },
		"confirmations": func(c *domain.CandidateSpec) { c.Entry = domain.CloseConfirmEntry{Confirmations: 2} },
		"buffer":        func(c *domain.CandidateSpec) { c.Entry = domain.CloseConfirmEntry{Confirmations: 1, Buffer: 0.1} },
		"target":        func(c *domain.CandidateSpec) { c.Exit = domain.FixedMultipleExit{Target: 2} },
		"risk":          func(c *domain.CandidateSpec) { c.Risk = domain.RangeOppositeStop{} },
		"filter":        func(c *domain.CandidateSpec) { c.Filters.RangeATRMax = 0.5 },
		"revision":      func(c *domain.CandidateSpec) { c.Revision = 1 },
	}

	for name, mutate := range variants {
		t.Run(name, func(t *testing.T) {
			c := testSpec()
			mutate(c)
			if ComputeParamHash(c) == base {
				t.Errorf("changing %s should change the hash", name)
			}
		})
	}
}

func TestComputeLineageHash_SharedAcrossRevisions(t *testing.T) {
	a := testSpec()
	b := testSpec().WithRevision(3)

	if ComputeLineageHash(a) != ComputeLineageHash(b) {
		t.Error("revisions of the same rules should share a lineage")
	}
	if ComputeParamHash(a) == ComputeParamHash(b) {
		t.Error("revisions must have distinct parameter hashes")
	}
}

func TestEdgeCode(t *testing.T) {
	hash := ComputeParamHash(testSpec())
	code := EdgeCode(hash)

	if !strings.HasPrefix(code, "EDGE-") {
		t.Fatalf("EdgeCode() = %q, want EDGE- prefix", code)
	}
	if code != EdgeCode(hash) {
		t.Error("EdgeCode() not deterministic")
	}
	if EdgeCode("not-hex") != "" {
		t.Error("EdgeCode() should reject non-hex input")
	}
}

package idhash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/mr-tron/base58"

	"edge-lab/internal/domain"
)

// edgeCodeBytes is the number of hash bytes encoded into an edge code.
const edgeCodeBytes = 10

// ComputeParamHash computes the deterministic parameter hash of a spec using SHA256.
// Formula: SHA256(inst|win|entry|exit|risk|filters|rev)
// Returns hex-encoded hash (64 characters).
func ComputeParamHash(c *domain.CandidateSpec) string {
	hash := sha256.Sum256([]byte(c.Canonical(true)))
	return hex.EncodeToString(hash[:])
}

// ComputeLineageHash hashes the rule set without its revision, so every
// revision of the same rules shares one lineage.
func ComputeLineageHash(c *domain.CandidateSpec) string {
	hash := sha256.Sum256([]byte(c.Canonical(false)))
	return hex.EncodeToString(hash[:])
}

// Seal computes and stores the spec's parameter hash.
func Seal(c *domain.CandidateSpec) *domain.CandidateSpec {
	c.ParamHash = ComputeParamHash(c)
	return c
}

// EdgeCode derives a short human code from a hex parameter hash.
// Returns "" if paramHash is not valid hex of sufficient length.
func EdgeCode(paramHash string) string {
	raw, err := hex.DecodeString(paramHash)
	if err != nil || len(raw) < edgeCodeBytes {
		return ""
	}
	return "EDGE-" + base58.Encode(raw[:edgeCodeBytes])
}

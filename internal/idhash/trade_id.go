package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(candidate_id|scenario_id|session_date|decision_time)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	candidateID string,
	scenarioID string,
	sessionDate string,
	decisionTimeMs int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		candidateID,
		scenarioID,
		sessionDate,
		decisionTimeMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeOutcomeID computes a deterministic outcome_id using SHA256.
// Formula: SHA256(candidate_id|run_id)
func ComputeOutcomeID(candidateID, runID string) string {
	hash := sha256.Sum256([]byte(candidateID + "|" + runID))
	return hex.EncodeToString(hash[:])
}

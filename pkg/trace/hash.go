package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// GenesisHash is the prev_hash of the first entry in a chain.
const GenesisHash = ""

// ComputeHash returns the SHA-256 hex digest of prevHash concatenated with
// the RFC 8785 canonical JSON of the decision with its own hash field
// cleared. The decision's PrevHash must already be set; it participates in
// the canonical form so linkage tampering is also detectable.
func ComputeHash(prevHash string, d *Decision) (string, error) {
	entry := *d
	entry.Hash = ""

	raw, err := json.Marshal(&entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal decision %s: %w", d.ID, err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize decision %s: %w", d.ID, err)
	}

	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IdempotencyKey derives the dedup key for one real-world prompt under one
// policy: SHA-256(policy_hash || prompt_id || session_id).
func IdempotencyKey(policyHash, promptID, sessionID string) string {
	h := sha256.New()
	h.Write([]byte(policyHash))
	h.Write([]byte(promptID))
	h.Write([]byte(sessionID))
	return hex.EncodeToString(h.Sum(nil))
}

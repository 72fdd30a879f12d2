package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed labels. The version suffix enables
// future algorithm migration without ambiguity.
const (
	domainRollbackTarget = "chronicle/rollback-target/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain || 0x00 || data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DefaultRollbackTarget computes a content-addressed label for a checkpoint's
// audit position from its name, snapshot refs, and audit cursor. The label is
// stable across restarts given the same inputs.
func DefaultRollbackTarget(name string, refs []Ref, auditCursor int64) (string, error) {
	refList := make([]any, len(refs))
	for i, r := range refs {
		refList[i] = map[string]any{
			"entityType": r.Type,
			"entityId":   r.ID,
		}
	}
	obj := map[string]any{
		"name":        name,
		"refs":        refList,
		"auditCursor": auditCursor,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("rollback target: %w", err)
	}
	return hashWithDomain(domainRollbackTarget, canonical), nil
}

package domain

import "time"

// CheckpointStatus is the bookkeeping lifecycle of a checkpoint.
//
// State machine: created --keep--> kept, created|kept --recover--> recovered.
// recovered is terminal; recovering an already-recovered checkpoint is an
// idempotent no-op at the service layer.
type CheckpointStatus string

const (
	CheckpointCreated   CheckpointStatus = "created"
	CheckpointKept      CheckpointStatus = "kept"
	CheckpointRecovered CheckpointStatus = "recovered"
)

// Checkpoint is a named, point-in-time bookkeeping record of which entity refs
// and which audit-log position define a prior system state.
//
// SnapshotRefs is fixed at creation and never mutated. AuditCursor is the
// audit trail length at the moment the caller captured the snapshot set.
// RollbackTarget is an opaque label for the audit position; when the caller
// passes none it defaults to a content hash of (name, refs, cursor).
type Checkpoint struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Status         CheckpointStatus `json:"status"`
	SnapshotRefs   []Ref            `json:"snapshotEntityRefs"`
	AuditCursor    int64            `json:"auditCursor"`
	RollbackTarget string           `json:"rollbackTarget"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// CheckpointFromEntity decodes a stored entity into a Checkpoint.
func CheckpointFromEntity(e Entity) (Checkpoint, error) {
	var cp Checkpoint
	if err := FromEntity(e, &cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

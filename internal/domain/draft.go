package domain

// DraftStatus is the outbound execution lifecycle of a draft.
//
// State machine:
//
//	draft --request--> pending_approval --approve--> executing --ok--> executed
//
// The executing state is persisted before the external port is invoked so
// an in-flight attempt is durable; a failed attempt compensates back to
// pending_approval with its own audit transition.
type DraftStatus string

const (
	DraftNew             DraftStatus = "draft"
	DraftPendingApproval DraftStatus = "pending_approval"
	DraftExecuting       DraftStatus = "executing"
	DraftExecuted        DraftStatus = "executed"
)

// OutboundDraft is the typed view of an "outbound_draft" entity.
// ExecutionID is set only after a successful execution.
type OutboundDraft struct {
	ID          string      `json:"id"`
	Subject     string      `json:"subject"`
	Body        string      `json:"body,omitempty"`
	Status      DraftStatus `json:"status"`
	ExecutionID string      `json:"executionId,omitempty"`
}

// DraftFromEntity decodes a stored entity into an OutboundDraft.
func DraftFromEntity(e Entity) (OutboundDraft, error) {
	var d OutboundDraft
	if err := FromEntity(e, &d); err != nil {
		return OutboundDraft{}, err
	}
	return d, nil
}

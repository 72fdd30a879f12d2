package workflow

import "context"

// Action identifies one outbound, externally side-effecting operation.
type Action struct {
	ActionType string
	EntityType string
	EntityID   string
}

// Action types passed to the outbound port.
const (
	ActionEventSync      = "event_sync"
	ActionDraftExecution = "draft_execution"
)

// Receipt is the executor's acknowledgement. An empty ExecutionID is treated
// as an invalid execution.
type Receipt struct {
	ExecutionID string
}

// OutboundPort executes actions with external, irreversible consequences
// (syncing to a calendar, sending a draft). The workflow imposes no timeout
// of its own on Execute; that is the port implementation's responsibility.
// Any error from Execute is a hard failure triggering compensation.
type OutboundPort interface {
	Execute(ctx context.Context, action Action) (Receipt, error)
}

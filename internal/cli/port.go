package cli

import (
	"context"

	"github.com/roach88/chronicle/internal/domain"
	"github.com/roach88/chronicle/internal/workflow"
)

// loopbackPort acknowledges outbound actions locally. The CLI has no
// external executor wired in, so an approved action is considered executed
// the moment it is approved, with a generated receipt id.
type loopbackPort struct {
	ids domain.IDGenerator
}

func (p loopbackPort) Execute(ctx context.Context, action workflow.Action) (workflow.Receipt, error) {
	return workflow.Receipt{ExecutionID: p.ids.NewID()}, nil
}

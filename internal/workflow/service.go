// Package workflow orchestrates the approval-gated lifecycle of outbound
// actions: request, pending approval, execution through the outbound port,
// and commit-or-compensate.
//
// Two state machines live here. Event sync:
//
//	local_only --request--> pending_approval --approve+execute--> synced
//
// Outbound draft:
//
//	draft --request--> pending_approval --approve--> executing --ok--> executed
//
// Every state mutation is paired with an audit transition in the same
// transaction, and the outbound port is invoked at most once per successful
// approval.
package workflow

import (
	"context"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/domain"
	"github.com/roach88/chronicle/internal/store"
)

// Service runs the approval and outbound execution workflow.
type Service struct {
	repo store.Repository
	rec  *audit.Recorder
	port OutboundPort
	ids  domain.IDGenerator
}

// New creates a workflow service.
func New(repo store.Repository, rec *audit.Recorder, port OutboundPort, ids domain.IDGenerator) *Service {
	return &Service{repo: repo, rec: rec, port: port, ids: ids}
}

// record builds and appends one audit transition inside the caller's
// transaction.
func (s *Service) record(ctx context.Context, p audit.Params) error {
	t, err := s.rec.Record(p)
	if err != nil {
		return err
	}
	if err := s.repo.AppendTransition(ctx, t); err != nil {
		return domain.WrapUnknown("append audit transition", err)
	}
	return nil
}

// checkApproval enforces the approval gate shared by both state machines:
// explicit consent and a user-kind actor. Both checks run before the
// outbound port could possibly be invoked.
func checkApproval(approved bool, actor domain.Actor) error {
	if !approved {
		return domain.NewInvalidRequest("approval requires approved=true")
	}
	if actor.Kind != domain.ActorUser {
		return domain.NewForbidden("approval requires a user actor, got kind %q", actor.Kind)
	}
	return nil
}

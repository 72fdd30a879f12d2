package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/domain"
)

// RequestDraftExecutionParams submits a draft for execution approval.
type RequestDraftExecutionParams struct {
	DraftID string
	Actor   domain.Actor
	At      time.Time
}

// ApproveDraftExecutionParams approves a pending draft execution.
type ApproveDraftExecutionParams struct {
	DraftID  string
	Approved bool
	Actor    domain.Actor
	At       time.Time
}

// RequestDraftExecution moves an outbound draft from draft to
// pending_approval. Any other starting status is a conflict.
func (s *Service) RequestDraftExecution(ctx context.Context, p RequestDraftExecutionParams) (domain.OutboundDraft, error) {
	var updated domain.OutboundDraft
	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		entity, found, err := s.repo.GetEntity(ctx, domain.TypeDraft, p.DraftID)
		if err != nil {
			return domain.WrapUnknown("load draft", err)
		}
		if !found {
			return domain.NewNotFound("draft %q does not exist", p.DraftID)
		}
		d, err := domain.DraftFromEntity(entity)
		if err != nil {
			return domain.WrapUnknown("decode draft", err)
		}
		if d.Status != domain.DraftNew {
			return domain.NewConflict("draft %q status is %q, expected %q", p.DraftID, d.Status, domain.DraftNew)
		}

		entity["status"] = string(domain.DraftPendingApproval)
		if err := s.repo.SaveEntity(ctx, domain.TypeDraft, p.DraftID, entity); err != nil {
			return err
		}
		if err := s.record(ctx, audit.Params{
			EntityType: domain.TypeDraft,
			EntityID:   p.DraftID,
			FromState:  string(domain.DraftNew),
			ToState:    string(domain.DraftPendingApproval),
			Actor:      p.Actor,
			Reason:     "execution requested",
			At:         p.At,
		}); err != nil {
			return err
		}

		d.Status = domain.DraftPendingApproval
		updated = d
		return nil
	})
	if err != nil {
		return domain.OutboundDraft{}, err
	}
	return updated, nil
}

// ApproveDraftExecution runs the approval gate, stages the draft as
// executing, calls the outbound port exactly once, and records the final
// status.
//
// Staging before the port call is what keeps the execution at-most-once: a
// concurrent second approval finds the draft already executing and gets a
// conflict rather than a second port call. When the port fails, or returns
// an empty executionId, the draft is compensated back to pending_approval
// with its own audit transition and the original failure is returned; the
// draft can then be re-approved.
func (s *Service) ApproveDraftExecution(ctx context.Context, p ApproveDraftExecutionParams) (domain.OutboundDraft, error) {
	if err := checkApproval(p.Approved, p.Actor); err != nil {
		return domain.OutboundDraft{}, err
	}

	// Stage: pending_approval -> executing, persisted and audited before
	// the port is touched.
	var entity domain.Entity
	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		var found bool
		var err error
		entity, found, err = s.repo.GetEntity(ctx, domain.TypeDraft, p.DraftID)
		if err != nil {
			return domain.WrapUnknown("load draft", err)
		}
		if !found {
			return domain.NewNotFound("draft %q does not exist", p.DraftID)
		}
		d, err := domain.DraftFromEntity(entity)
		if err != nil {
			return domain.WrapUnknown("decode draft", err)
		}
		if d.Status != domain.DraftPendingApproval {
			return domain.NewConflict("draft %q status is %q, expected %q", p.DraftID, d.Status, domain.DraftPendingApproval)
		}

		entity["status"] = string(domain.DraftExecuting)
		if err := s.repo.SaveEntity(ctx, domain.TypeDraft, p.DraftID, entity); err != nil {
			return err
		}
		return s.record(ctx, audit.Params{
			EntityType: domain.TypeDraft,
			EntityID:   p.DraftID,
			FromState:  string(domain.DraftPendingApproval),
			ToState:    string(domain.DraftExecuting),
			Actor:      p.Actor,
			Reason:     "execution approved",
			At:         p.At,
		})
	})
	if err != nil {
		return domain.OutboundDraft{}, err
	}

	receipt, portErr := s.port.Execute(ctx, Action{
		ActionType: ActionDraftExecution,
		EntityType: domain.TypeDraft,
		EntityID:   p.DraftID,
	})
	if portErr == nil && receipt.ExecutionID == "" {
		portErr = domain.NewInvalidRequest("execution port returned an empty executionId")
	}
	if portErr != nil {
		if !domain.IsInvalidRequest(portErr) {
			portErr = domain.WrapUnknown("execute outbound draft", portErr)
		}
		if compErr := s.compensateDraft(ctx, p.DraftID, p.Actor, p.At); compErr != nil {
			return domain.OutboundDraft{}, fmt.Errorf("%w; compensation failed: %v", portErr, compErr)
		}
		return domain.OutboundDraft{}, portErr
	}

	// Finalize: executing -> executed, carrying the execution receipt.
	var updated domain.OutboundDraft
	err = s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		entity["status"] = string(domain.DraftExecuted)
		entity["executionId"] = receipt.ExecutionID
		if err := s.repo.SaveEntity(ctx, domain.TypeDraft, p.DraftID, entity); err != nil {
			return err
		}
		if err := s.record(ctx, audit.Params{
			EntityType: domain.TypeDraft,
			EntityID:   p.DraftID,
			FromState:  string(domain.DraftExecuting),
			ToState:    string(domain.DraftExecuted),
			Actor:      p.Actor,
			Reason:     "execution completed",
			At:         p.At,
			Metadata:   map[string]string{"executionId": receipt.ExecutionID},
		}); err != nil {
			return err
		}

		d, err := domain.DraftFromEntity(entity)
		if err != nil {
			return domain.WrapUnknown("decode draft", err)
		}
		updated = d
		return nil
	})
	if err != nil {
		return domain.OutboundDraft{}, err
	}
	return updated, nil
}

// compensateDraft returns a failed execution to pending_approval so the
// draft can be approved again.
func (s *Service) compensateDraft(ctx context.Context, draftID string, actor domain.Actor, at time.Time) error {
	return s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		entity, found, err := s.repo.GetEntity(ctx, domain.TypeDraft, draftID)
		if err != nil {
			return domain.WrapUnknown("load draft", err)
		}
		if !found {
			return domain.NewNotFound("draft %q does not exist", draftID)
		}
		entity["status"] = string(domain.DraftPendingApproval)
		if err := s.repo.SaveEntity(ctx, domain.TypeDraft, draftID, entity); err != nil {
			return err
		}
		return s.record(ctx, audit.Params{
			EntityType: domain.TypeDraft,
			EntityID:   draftID,
			FromState:  string(domain.DraftExecuting),
			ToState:    string(domain.DraftPendingApproval),
			Actor:      actor,
			Reason:     "execution failed, compensated",
			At:         at,
		})
	})
}

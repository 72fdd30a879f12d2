package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/domain"
)

// RequestEventSyncParams asks to sync a local event to the external system.
type RequestEventSyncParams struct {
	EventID string
	Actor   domain.Actor
	At      time.Time
}

// ApproveEventSyncParams approves (or malformedly declines) a pending sync.
type ApproveEventSyncParams struct {
	EventID  string
	Approved bool
	Actor    domain.Actor
	At       time.Time
}

// RequestEventSync moves an event from local_only to pending_approval and
// creates a pending approval notification referencing it. Requesting sync on
// an event in any other state is a conflict.
func (s *Service) RequestEventSync(ctx context.Context, p RequestEventSyncParams) (domain.Event, error) {
	var updated domain.Event
	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		entity, found, err := s.repo.GetEntity(ctx, domain.TypeEvent, p.EventID)
		if err != nil {
			return domain.WrapUnknown("load event", err)
		}
		if !found {
			return domain.NewNotFound("event %q does not exist", p.EventID)
		}
		ev, err := domain.EventFromEntity(entity)
		if err != nil {
			return domain.WrapUnknown("decode event", err)
		}
		if ev.SyncState != domain.SyncLocalOnly {
			return domain.NewConflict("event %q sync state is %q, expected %q", p.EventID, ev.SyncState, domain.SyncLocalOnly)
		}

		entity["syncState"] = string(domain.SyncPendingApproval)
		if err := s.repo.SaveEntity(ctx, domain.TypeEvent, p.EventID, entity); err != nil {
			return err
		}

		notification := domain.Notification{
			ID:         s.ids.NewID(),
			Kind:       "approval_request",
			EntityType: domain.TypeEvent,
			EntityID:   p.EventID,
			Status:     domain.NotificationPending,
		}
		notificationEntity, err := domain.ToEntity(notification)
		if err != nil {
			return domain.WrapUnknown("encode notification", err)
		}
		if err := s.repo.SaveEntity(ctx, domain.TypeNotification, notification.ID, notificationEntity); err != nil {
			return err
		}

		if err := s.record(ctx, audit.Params{
			EntityType: domain.TypeEvent,
			EntityID:   p.EventID,
			FromState:  string(domain.SyncLocalOnly),
			ToState:    string(domain.SyncPendingApproval),
			Actor:      p.Actor,
			Reason:     "sync requested",
			At:         p.At,
			Metadata:   map[string]string{"notificationId": notification.ID},
		}); err != nil {
			return err
		}
		if err := s.record(ctx, audit.Params{
			EntityType: domain.TypeNotification,
			EntityID:   notification.ID,
			ToState:    string(domain.NotificationPending),
			Actor:      p.Actor,
			Reason:     fmt.Sprintf("approval requested for event %s", p.EventID),
			At:         p.At,
		}); err != nil {
			return err
		}

		ev.SyncState = domain.SyncPendingApproval
		updated = ev
		return nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	return updated, nil
}

// ApproveEventSync executes the outbound sync for a pending event.
//
// The gate fails closed before the port is touched: approved=false is
// invalid_request, a non-user actor is forbidden, and any state other than
// pending_approval is a conflict (which is what makes duplicate approvals
// at-most-once). After a successful execution the synced state, the resolved
// notification, and the audit transition persist atomically; if that
// persistence fails the event is rolled back to its pre-approval value and
// the original error is re-raised, with any rollback failure appended. The
// external execution itself is not reversed; it already happened and the
// executor is assumed to be idempotent.
func (s *Service) ApproveEventSync(ctx context.Context, p ApproveEventSyncParams) (domain.Event, error) {
	if err := checkApproval(p.Approved, p.Actor); err != nil {
		return domain.Event{}, err
	}

	entity, found, err := s.repo.GetEntity(ctx, domain.TypeEvent, p.EventID)
	if err != nil {
		return domain.Event{}, domain.WrapUnknown("load event", err)
	}
	if !found {
		return domain.Event{}, domain.NewNotFound("event %q does not exist", p.EventID)
	}
	ev, err := domain.EventFromEntity(entity)
	if err != nil {
		return domain.Event{}, domain.WrapUnknown("decode event", err)
	}
	if ev.SyncState != domain.SyncPendingApproval {
		return domain.Event{}, domain.NewConflict("event %q sync state is %q, expected %q", p.EventID, ev.SyncState, domain.SyncPendingApproval)
	}
	prior := entity.Clone()

	receipt, err := s.port.Execute(ctx, Action{
		ActionType: ActionEventSync,
		EntityType: domain.TypeEvent,
		EntityID:   p.EventID,
	})
	if err != nil {
		return domain.Event{}, domain.WrapUnknown("execute outbound sync", err)
	}
	if receipt.ExecutionID == "" {
		return domain.Event{}, domain.NewInvalidRequest("execution port returned an empty executionId")
	}

	persistErr := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		entity["syncState"] = string(domain.SyncSynced)
		if err := s.repo.SaveEntity(ctx, domain.TypeEvent, p.EventID, entity); err != nil {
			return err
		}

		metadata := map[string]string{"executionId": receipt.ExecutionID}
		notificationID, err := s.resolveNotification(ctx, p.EventID, p.Actor, p.At)
		if err != nil {
			return err
		}
		if notificationID != "" {
			metadata["notificationId"] = notificationID
		}

		return s.record(ctx, audit.Params{
			EntityType: domain.TypeEvent,
			EntityID:   p.EventID,
			FromState:  string(domain.SyncPendingApproval),
			ToState:    string(domain.SyncSynced),
			Actor:      p.Actor,
			Reason:     "sync approved and executed",
			At:         p.At,
			Metadata:   metadata,
		})
	})
	if persistErr != nil {
		if rbErr := s.repo.SaveEntity(ctx, domain.TypeEvent, p.EventID, prior); rbErr != nil {
			return domain.Event{}, fmt.Errorf("%w; rollback failed: %v", persistErr, rbErr)
		}
		return domain.Event{}, persistErr
	}

	ev.SyncState = domain.SyncSynced
	return ev, nil
}

// resolveNotification marks the event's pending approval notification as
// resolved. Returns the notification id, or empty if none is pending.
func (s *Service) resolveNotification(ctx context.Context, eventID string, actor domain.Actor, at time.Time) (string, error) {
	entities, err := s.repo.ListEntities(ctx, domain.TypeNotification)
	if err != nil {
		return "", domain.WrapUnknown("load notifications", err)
	}
	for _, entity := range entities {
		n, err := domain.NotificationFromEntity(entity)
		if err != nil {
			continue
		}
		if n.EntityType != domain.TypeEvent || n.EntityID != eventID || n.Status != domain.NotificationPending {
			continue
		}
		entity["status"] = string(domain.NotificationResolved)
		if err := s.repo.SaveEntity(ctx, domain.TypeNotification, n.ID, entity); err != nil {
			return "", err
		}
		if err := s.record(ctx, audit.Params{
			EntityType: domain.TypeNotification,
			EntityID:   n.ID,
			FromState:  string(domain.NotificationPending),
			ToState:    string(domain.NotificationResolved),
			Actor:      actor,
			Reason:     fmt.Sprintf("approval resolved for event %s", eventID),
			At:         at,
		}); err != nil {
			return "", err
		}
		return n.ID, nil
	}
	return "", nil
}

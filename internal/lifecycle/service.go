// Package lifecycle is the mutation boundary exposed to callers: every
// entry point takes an actor and an optional timestamp, mutates the store
// under a transaction, and pairs each change with an audit transition.
package lifecycle

import (
	"context"
	"time"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/domain"
	"github.com/roach88/chronicle/internal/store"
)

// ReferenceRules are the referential-integrity constraints the store
// enforces for the entity kinds this service manages.
func ReferenceRules() []store.ReferenceRule {
	return []store.ReferenceRule{
		{FromType: domain.TypeNotification, Field: "entityId", ToType: domain.TypeEvent},
	}
}

// Service owns the event and draft entity lifecycles.
type Service struct {
	repo store.Repository
	rec  *audit.Recorder
	ids  domain.IDGenerator
}

func New(repo store.Repository, rec *audit.Recorder, ids domain.IDGenerator) *Service {
	return &Service{repo: repo, rec: rec, ids: ids}
}

// CreateEventParams describes a new calendar event. StartsAt/EndsAt are
// RFC 3339 strings; EndsAt may be empty for open-ended events.
type CreateEventParams struct {
	Title    string
	StartsAt string
	EndsAt   string
	Actor    domain.Actor
	At       time.Time
}

// UpdateEventScheduleParams reschedules an existing event.
type UpdateEventScheduleParams struct {
	EventID  string
	StartsAt string
	EndsAt   string
	Actor    domain.Actor
	At       time.Time
}

// CreateDraftParams describes a new outbound draft.
type CreateDraftParams struct {
	Subject string
	Body    string
	Actor   domain.Actor
	At      time.Time
}

// CreateEvent stores a new event in sync state local_only and records its
// creation transition.
func (s *Service) CreateEvent(ctx context.Context, p CreateEventParams) (domain.Event, error) {
	if p.Title == "" {
		return domain.Event{}, domain.NewInvalidRequest("event title must not be empty")
	}
	if _, err := time.Parse(time.RFC3339, p.StartsAt); err != nil {
		return domain.Event{}, domain.NewInvalidRequest("event startsAt %q is not RFC 3339: %v", p.StartsAt, err)
	}
	if p.EndsAt != "" {
		if _, err := time.Parse(time.RFC3339, p.EndsAt); err != nil {
			return domain.Event{}, domain.NewInvalidRequest("event endsAt %q is not RFC 3339: %v", p.EndsAt, err)
		}
	}

	ev := domain.Event{
		ID:        s.ids.NewID(),
		Title:     p.Title,
		StartsAt:  p.StartsAt,
		EndsAt:    p.EndsAt,
		SyncState: domain.SyncLocalOnly,
	}
	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		entity, err := domain.ToEntity(ev)
		if err != nil {
			return domain.WrapUnknown("encode event", err)
		}
		if err := s.repo.SaveEntity(ctx, domain.TypeEvent, ev.ID, entity); err != nil {
			return err
		}
		return s.record(ctx, audit.Params{
			EntityType: domain.TypeEvent,
			EntityID:   ev.ID,
			ToState:    string(domain.SyncLocalOnly),
			Actor:      p.Actor,
			Reason:     "event created",
			At:         p.At,
		})
	})
	if err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

// UpdateEventSchedule changes an event's start and end. Synced events
// cannot be rescheduled locally; they would silently diverge from the
// external copy.
func (s *Service) UpdateEventSchedule(ctx context.Context, p UpdateEventScheduleParams) (domain.Event, error) {
	if _, err := time.Parse(time.RFC3339, p.StartsAt); err != nil {
		return domain.Event{}, domain.NewInvalidRequest("event startsAt %q is not RFC 3339: %v", p.StartsAt, err)
	}
	if p.EndsAt != "" {
		if _, err := time.Parse(time.RFC3339, p.EndsAt); err != nil {
			return domain.Event{}, domain.NewInvalidRequest("event endsAt %q is not RFC 3339: %v", p.EndsAt, err)
		}
	}

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
		if ev.SyncState == domain.SyncSynced {
			return domain.NewConflict("event %q is synced and cannot be rescheduled locally", p.EventID)
		}

		entity["startsAt"] = p.StartsAt
		if p.EndsAt == "" {
			delete(entity, "endsAt")
		} else {
			entity["endsAt"] = p.EndsAt
		}
		if err := s.repo.SaveEntity(ctx, domain.TypeEvent, p.EventID, entity); err != nil {
			return err
		}
		if err := s.record(ctx, audit.Params{
			EntityType: domain.TypeEvent,
			EntityID:   p.EventID,
			FromState:  string(ev.SyncState),
			ToState:    string(ev.SyncState),
			Actor:      p.Actor,
			Reason:     "event rescheduled",
			At:         p.At,
			Metadata:   map[string]string{"startsAt": p.StartsAt, "endsAt": p.EndsAt},
		}); err != nil {
			return err
		}

		ev.StartsAt = p.StartsAt
		ev.EndsAt = p.EndsAt
		updated = ev
		return nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	return updated, nil
}

// DeleteEvent removes an event and records the deletion. The store rejects
// the delete with conflict while a notification still references the event.
func (s *Service) DeleteEvent(ctx context.Context, eventID string, actor domain.Actor, at time.Time) error {
	return s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		entity, found, err := s.repo.GetEntity(ctx, domain.TypeEvent, eventID)
		if err != nil {
			return domain.WrapUnknown("load event", err)
		}
		if !found {
			return domain.NewNotFound("event %q does not exist", eventID)
		}
		ev, err := domain.EventFromEntity(entity)
		if err != nil {
			return domain.WrapUnknown("decode event", err)
		}
		if err := s.repo.DeleteEntity(ctx, domain.TypeEvent, eventID); err != nil {
			return err
		}
		return s.record(ctx, audit.Params{
			EntityType: domain.TypeEvent,
			EntityID:   eventID,
			FromState:  string(ev.SyncState),
			ToState:    "deleted",
			Actor:      actor,
			Reason:     "event deleted",
			At:         at,
		})
	})
}

// CreateDraft stores a new outbound draft in status draft.
func (s *Service) CreateDraft(ctx context.Context, p CreateDraftParams) (domain.OutboundDraft, error) {
	if p.Subject == "" {
		return domain.OutboundDraft{}, domain.NewInvalidRequest("draft subject must not be empty")
	}

	d := domain.OutboundDraft{
		ID:      s.ids.NewID(),
		Subject: p.Subject,
		Body:    p.Body,
		Status:  domain.DraftNew,
	}
	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		entity, err := domain.ToEntity(d)
		if err != nil {
			return domain.WrapUnknown("encode draft", err)
		}
		if err := s.repo.SaveEntity(ctx, domain.TypeDraft, d.ID, entity); err != nil {
			return err
		}
		return s.record(ctx, audit.Params{
			EntityType: domain.TypeDraft,
			EntityID:   d.ID,
			ToState:    string(domain.DraftNew),
			Actor:      p.Actor,
			Reason:     "draft created",
			At:         p.At,
		})
	})
	if err != nil {
		return domain.OutboundDraft{}, err
	}
	return d, nil
}

func (s *Service) record(ctx context.Context, p audit.Params) error {
	tr, err := s.rec.Record(p)
	if err != nil {
		return err
	}
	if err := s.repo.AppendTransition(ctx, tr); err != nil {
		return domain.WrapUnknown("append audit transition", err)
	}
	return nil
}

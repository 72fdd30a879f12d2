// Package audit constructs immutable audit transitions.
//
// The recorder is a pure leaf: given a clock and an id generator it validates
// and assembles Transition values. It never touches storage; appending to the
// trail is the repository's job.
package audit

import (
	"time"

	"github.com/roach88/chronicle/internal/domain"
)

// Params describes one state change to record.
// At is optional; the zero value defaults to the recorder's clock, which is
// what enables deterministic testing.
type Params struct {
	EntityType string
	EntityID   string
	FromState  string
	ToState    string
	Actor      domain.Actor
	Reason     string
	At         time.Time
	Metadata   map[string]string
}

// Recorder builds audit transitions from a clock and an id generator.
type Recorder struct {
	now func() time.Time
	ids domain.IDGenerator
}

// NewRecorder creates a recorder. A nil clock defaults to time.Now.
func NewRecorder(now func() time.Time, ids domain.IDGenerator) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now, ids: ids}
}

// Record validates the params and returns an immutable transition.
// Required fields: EntityType, EntityID, Reason, a non-empty actor id, and a
// known actor kind. Validation failures surface as invalid_request errors;
// no side effect ever occurs here.
func (r *Recorder) Record(p Params) (domain.Transition, error) {
	if p.EntityType == "" {
		return domain.Transition{}, domain.NewInvalidRequest("transition entityType must not be empty")
	}
	if p.EntityID == "" {
		return domain.Transition{}, domain.NewInvalidRequest("transition entityId must not be empty")
	}
	if p.Reason == "" {
		return domain.Transition{}, domain.NewInvalidRequest("transition reason must not be empty")
	}
	if p.Actor.ID == "" {
		return domain.Transition{}, domain.NewInvalidRequest("transition actor id must not be empty")
	}
	if !p.Actor.Kind.Valid() {
		return domain.Transition{}, domain.NewInvalidRequest("transition actor kind %q is not one of user, system, ai", p.Actor.Kind)
	}

	at := p.At
	if at.IsZero() {
		at = r.now()
	}

	t := domain.Transition{
		ID:         r.ids.NewID(),
		EntityType: p.EntityType,
		EntityID:   p.EntityID,
		FromState:  p.FromState,
		ToState:    p.ToState,
		Actor:      p.Actor,
		Reason:     p.Reason,
		At:         at,
	}
	if len(p.Metadata) > 0 {
		t.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			t.Metadata[k] = v
		}
	}
	return t, nil
}

// NewID exposes the recorder's id generator for callers that need entity ids
// minted from the same deterministic source in tests.
func (r *Recorder) NewID() string {
	return r.ids.NewID()
}

// Now exposes the recorder's clock for callers that stamp entity timestamps.
func (r *Recorder) Now() time.Time {
	return r.now()
}

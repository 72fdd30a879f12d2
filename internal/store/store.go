// Package store defines the transactional repository contract shared by the
// in-memory and SQLite backends, plus the versioned snapshot file format.
//
// The repository couples generic keyed entity storage to an append-only audit
// trail behind one transaction boundary. Nested transactions collapse into
// their ancestor; concurrent root transactions are isolated from each other.
package store

import (
	"context"

	"github.com/roach88/chronicle/internal/domain"
)

// TransitionFilter narrows an audit trail listing. Zero fields match all.
type TransitionFilter struct {
	EntityType string
	EntityID   string
}

// ReferenceRule declares that entities of FromType reference an entity of
// ToType through a string Field. Saving a referencing entity whose target is
// absent, or deleting a target that is still referenced, fails as a conflict
// and is never partially applied.
type ReferenceRule struct {
	FromType string
	Field    string
	ToType   string
}

// Repository is the transactional entity store plus audit trail.
//
// All operations run under whatever transaction is active in ctx, or as an
// implicit single-operation transaction if none is. Entities and transitions
// are deep-copied on every read and write: callers can never mutate stored
// state through a returned value.
type Repository interface {
	// SaveEntity creates or replaces an entity under (entityType, id).
	SaveEntity(ctx context.Context, entityType, id string, value domain.Entity) error

	// GetEntity returns the entity and true, or a zero value and false if absent.
	GetEntity(ctx context.Context, entityType, id string) (domain.Entity, bool, error)

	// DeleteEntity removes an entity. Deleting an absent entity is not an error.
	DeleteEntity(ctx context.Context, entityType, id string) error

	// ListEntities returns all entities of a type ordered by id.
	ListEntities(ctx context.Context, entityType string) ([]domain.Entity, error)

	// EntityTypes returns all collection names present, ordered.
	EntityTypes(ctx context.Context) ([]string, error)

	// AppendTransition appends to the audit trail. The trail is append-only;
	// nothing ever mutates or removes a stored transition.
	AppendTransition(ctx context.Context, t domain.Transition) error

	// ListTransitions returns matching transitions oldest first (insertion
	// order). Presentation layers reverse for most-recent-first views.
	ListTransitions(ctx context.Context, f TransitionFilter) ([]domain.Transition, error)

	// WithTransaction runs fn so that all writes inside it commit atomically
	// or are fully discarded when fn returns an error. A nested call from
	// inside an active transaction does not create an independent commit
	// point; it shares the ancestor's atomicity, and any failure rolls back
	// the entire ancestor.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases held resources. Safe to call once after all operations
	// complete.
	Close() error
}

// Snapshotter is implemented by backends that can serialize their full state
// to a portable snapshot file and restore from one.
type Snapshotter interface {
	// PersistSnapshot serializes the entire store (all entity collections and
	// the full audit trail) to a versioned snapshot file.
	PersistSnapshot(ctx context.Context, path string) error

	// LoadSnapshot replaces the store's contents from a snapshot file.
	LoadSnapshot(ctx context.Context, path string) error
}

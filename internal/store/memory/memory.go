// Package memory provides the in-memory repository backend.
//
// The store is an explicit struct owned by whoever constructs it; there are
// no process-wide singletons. Isolation uses a single-writer lock: a root
// transaction holds the lock for its whole extent, so a concurrently issued
// root transaction can never observe uncommitted writes, and a failed
// transaction's writes are reverted through an undo journal before the lock
// is released.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/roach88/chronicle/internal/domain"
	"github.com/roach88/chronicle/internal/store"
)

var errClosed = errors.New("store is closed")

// Store is the in-memory repository.
type Store struct {
	mu sync.Mutex

	entities map[string]map[string]domain.Entity
	trail    []domain.Transition
	rules    []store.ReferenceRule
	closed   bool
}

// txScope is the unit of work for one root transaction. The journal records
// undo closures for every write; rollback applies them in reverse.
type txScope struct {
	store   *Store
	journal []func()
}

func (sc *txScope) revert() {
	for i := len(sc.journal) - 1; i >= 0; i-- {
		sc.journal[i]()
	}
	sc.journal = nil
}

// New creates an empty in-memory store enforcing the given reference rules.
func New(rules ...store.ReferenceRule) *Store {
	return &Store{
		entities: make(map[string]map[string]domain.Entity),
		rules:    rules,
	}
}

// scopeFrom returns the active transaction scope if it belongs to this store.
func (s *Store) scopeFrom(ctx context.Context) *txScope {
	raw, ok := store.ScopeFrom(ctx)
	if !ok {
		return nil
	}
	sc, ok := raw.(*txScope)
	if !ok || sc.store != s {
		return nil
	}
	return sc
}

// run executes op under the active transaction, or as an implicit
// single-operation transaction holding the lock if none is active.
func (s *Store) run(ctx context.Context, op func(sc *txScope) error) error {
	if sc := s.scopeFrom(ctx); sc != nil {
		return op(sc)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	return op(nil)
}

// WithTransaction implements the repository transaction boundary.
// Nested calls collapse into the enclosing transaction; only the outermost
// scope commits or rolls back.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if sc := s.scopeFrom(ctx); sc != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	sc := &txScope{store: s}
	if err := fn(store.WithScope(ctx, sc)); err != nil {
		sc.revert()
		return err
	}
	return nil
}

// SaveEntity creates or replaces an entity, enforcing reference rules.
func (s *Store) SaveEntity(ctx context.Context, entityType, id string, value domain.Entity) error {
	return s.run(ctx, func(sc *txScope) error {
		return s.saveEntity(sc, entityType, id, value)
	})
}

func (s *Store) saveEntity(sc *txScope, entityType, id string, value domain.Entity) error {
	if entityType == "" || id == "" {
		return domain.NewInvalidRequest("entity type and id must not be empty")
	}
	for _, rule := range s.rules {
		if rule.FromType != entityType {
			continue
		}
		ref, _ := value[rule.Field].(string)
		if ref == "" {
			continue
		}
		if _, ok := s.entities[rule.ToType][ref]; !ok {
			return domain.NewConflict("%s %q references %s %q which does not exist", entityType, id, rule.ToType, ref)
		}
	}

	collection := s.entities[entityType]
	if collection == nil {
		collection = make(map[string]domain.Entity)
		s.entities[entityType] = collection
	}
	prev, existed := collection[id]
	if sc != nil {
		sc.journal = append(sc.journal, func() {
			if existed {
				collection[id] = prev
			} else {
				delete(collection, id)
			}
		})
	}
	collection[id] = value.Clone()
	return nil
}

// GetEntity returns a deep copy of the stored entity.
func (s *Store) GetEntity(ctx context.Context, entityType, id string) (domain.Entity, bool, error) {
	var out domain.Entity
	var found bool
	err := s.run(ctx, func(*txScope) error {
		e, ok := s.entities[entityType][id]
		if ok {
			out = e.Clone()
			found = true
		}
		return nil
	})
	return out, found, err
}

// DeleteEntity removes an entity unless a reference rule still points at it.
func (s *Store) DeleteEntity(ctx context.Context, entityType, id string) error {
	return s.run(ctx, func(sc *txScope) error {
		return s.deleteEntity(sc, entityType, id)
	})
}

func (s *Store) deleteEntity(sc *txScope, entityType, id string) error {
	for _, rule := range s.rules {
		if rule.ToType != entityType {
			continue
		}
		for refID, e := range s.entities[rule.FromType] {
			if ref, _ := e[rule.Field].(string); ref == id {
				return domain.NewConflict("cannot delete %s %q: still referenced by %s %q", entityType, id, rule.FromType, refID)
			}
		}
	}

	collection := s.entities[entityType]
	prev, existed := collection[id]
	if !existed {
		return nil
	}
	if sc != nil {
		sc.journal = append(sc.journal, func() {
			collection[id] = prev
		})
	}
	delete(collection, id)
	return nil
}

// ListEntities returns deep copies of a collection ordered by id.
func (s *Store) ListEntities(ctx context.Context, entityType string) ([]domain.Entity, error) {
	var out []domain.Entity
	err := s.run(ctx, func(*txScope) error {
		collection := s.entities[entityType]
		ids := make([]string, 0, len(collection))
		for id := range collection {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out = make([]domain.Entity, 0, len(ids))
		for _, id := range ids {
			out = append(out, collection[id].Clone())
		}
		return nil
	})
	return out, err
}

// EntityTypes returns all non-empty collection names, ordered.
func (s *Store) EntityTypes(ctx context.Context) ([]string, error) {
	var out []string
	err := s.run(ctx, func(*txScope) error {
		for t, collection := range s.entities {
			if len(collection) > 0 {
				out = append(out, t)
			}
		}
		sort.Strings(out)
		return nil
	})
	return out, err
}

// AppendTransition appends to the audit trail.
func (s *Store) AppendTransition(ctx context.Context, t domain.Transition) error {
	return s.run(ctx, func(sc *txScope) error {
		if sc != nil {
			n := len(s.trail)
			sc.journal = append(sc.journal, func() {
				s.trail = s.trail[:n]
			})
		}
		s.trail = append(s.trail, t.Clone())
		return nil
	})
}

// ListTransitions returns matching transitions in insertion order, as copies.
func (s *Store) ListTransitions(ctx context.Context, f store.TransitionFilter) ([]domain.Transition, error) {
	var out []domain.Transition
	err := s.run(ctx, func(*txScope) error {
		for _, t := range s.trail {
			if f.EntityType != "" && t.EntityType != f.EntityType {
				continue
			}
			if f.EntityID != "" && t.EntityID != f.EntityID {
				continue
			}
			out = append(out, t.Clone())
		}
		return nil
	})
	return out, err
}

// Close marks the store closed. Safe to call once after all operations
// complete; subsequent operations fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ store.Repository = (*Store)(nil)
var _ store.Snapshotter = (*Store)(nil)

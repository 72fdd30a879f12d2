package memory

import (
	"context"
	"fmt"

	"github.com/roach88/chronicle/internal/domain"
	"github.com/roach88/chronicle/internal/store"
)

// PersistSnapshot serializes the entire store to a versioned snapshot file.
// The file is canonical JSON, so persisting the same contents twice yields
// byte-identical files.
func (s *Store) PersistSnapshot(ctx context.Context, path string) error {
	snap, err := store.BuildSnapshot(ctx, s)
	if err != nil {
		return err
	}
	return snap.WriteFile(path)
}

// LoadSnapshot replaces the store's contents from a snapshot file.
// Malformed files are rejected wholesale; nothing is partially imported.
// Entities lacking a usable id are skipped by the snapshot decoder.
func (s *Store) LoadSnapshot(_ context.Context, path string) error {
	snap, err := store.ReadSnapshotFile(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("load snapshot: %w", errClosed)
	}

	entities := make(map[string]map[string]domain.Entity, len(snap.Entities))
	for entityType, list := range snap.Entities {
		collection := make(map[string]domain.Entity, len(list))
		for _, e := range list {
			collection[e.ID()] = e.Clone()
		}
		entities[entityType] = collection
	}
	trail := make([]domain.Transition, len(snap.AuditTrail))
	for i, t := range snap.AuditTrail {
		trail[i] = t.Clone()
	}

	s.entities = entities
	s.trail = trail
	return nil
}

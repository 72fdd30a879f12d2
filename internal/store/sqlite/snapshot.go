package sqlite

import (
	"context"

	"github.com/roach88/chronicle/internal/store"
)

// PersistSnapshot writes the full store contents to a snapshot file.
func (s *Store) PersistSnapshot(ctx context.Context, path string) error {
	snap, err := store.BuildSnapshot(ctx, s)
	if err != nil {
		return err
	}
	return snap.WriteFile(path)
}

// LoadSnapshot imports a snapshot file into the store. Entities with
// colliding keys are overwritten; the snapshot's trail is appended, with
// transitions already present (by id) skipped.
func (s *Store) LoadSnapshot(ctx context.Context, path string) error {
	snap, err := store.ReadSnapshotFile(path)
	if err != nil {
		return err
	}
	return store.RestoreSnapshot(ctx, s, snap)
}

var _ store.Snapshotter = (*Store)(nil)

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/roach88/chronicle/internal/domain"
)

// SnapshotVersion is the current snapshot file format version.
const SnapshotVersion = 1

// Snapshot is the serialized form of an entire store: every entity collection
// plus the full audit trail. The file layout is:
//
//	{
//	  "version": 1,
//	  "entities": { "<entityType>": [ <entity>, ... ], ... },
//	  "auditTrail": [ <transition>, ... ]
//	}
//
// Files are written as canonical JSON so identical store contents always
// produce identical bytes.
type Snapshot struct {
	Version    int
	Entities   map[string][]domain.Entity
	AuditTrail []domain.Transition
}

// BuildSnapshot reads the complete contents of a repository under a single
// transaction so the captured entities and trail are mutually consistent.
func BuildSnapshot(ctx context.Context, repo Repository) (*Snapshot, error) {
	snap := &Snapshot{
		Version:  SnapshotVersion,
		Entities: make(map[string][]domain.Entity),
	}
	err := repo.WithTransaction(ctx, func(ctx context.Context) error {
		types, err := repo.EntityTypes(ctx)
		if err != nil {
			return err
		}
		for _, t := range types {
			entities, err := repo.ListEntities(ctx, t)
			if err != nil {
				return err
			}
			snap.Entities[t] = entities
		}
		trail, err := repo.ListTransitions(ctx, TransitionFilter{})
		if err != nil {
			return err
		}
		snap.AuditTrail = trail
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	return snap, nil
}

// RestoreSnapshot writes a snapshot's entities and audit trail into a
// repository under one transaction. Intended for importing into an empty
// store; existing entities with colliding keys are overwritten and the trail
// is appended in snapshot order.
func RestoreSnapshot(ctx context.Context, repo Repository, snap *Snapshot) error {
	err := repo.WithTransaction(ctx, func(ctx context.Context) error {
		for entityType, entities := range snap.Entities {
			for _, e := range entities {
				if err := repo.SaveEntity(ctx, entityType, e.ID(), e); err != nil {
					return err
				}
			}
		}
		for _, t := range snap.AuditTrail {
			if err := repo.AppendTransition(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	return nil
}

// WriteFile serializes the snapshot to canonical JSON at path.
func (s *Snapshot) WriteFile(path string) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Encode renders the snapshot as canonical JSON bytes.
// Entity lists are ordered by id (the repository guarantees that) and the
// audit trail keeps insertion order.
func (s *Snapshot) Encode() ([]byte, error) {
	entities := make(map[string]any, len(s.Entities))
	for entityType, list := range s.Entities {
		arr := make([]any, len(list))
		for i, e := range list {
			arr[i] = map[string]any(e)
		}
		entities[entityType] = arr
	}

	trail := make([]any, len(s.AuditTrail))
	for i, t := range s.AuditTrail {
		m, err := domain.ToEntity(t)
		if err != nil {
			return nil, fmt.Errorf("encode snapshot transition %s: %w", t.ID, err)
		}
		trail[i] = map[string]any(m)
	}

	data, err := domain.MarshalCanonical(map[string]any{
		"version":    SnapshotVersion,
		"entities":   entities,
		"auditTrail": trail,
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// ReadSnapshotFile parses and validates a snapshot file.
//
// Malformed shapes (non-object entities, non-array collections or trail) are
// rejected with a descriptive error rather than silently importing partial
// data. Entities lacking a usable id are skipped.
func ReadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return DecodeSnapshot(data)
}

// DecodeSnapshot parses snapshot bytes. See ReadSnapshotFile.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var raw struct {
		Version    *int            `json:"version"`
		Entities   json.RawMessage `json:"entities"`
		AuditTrail json.RawMessage `json:"auditTrail"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid snapshot shape: %w", err)
	}
	if raw.Version == nil {
		return nil, fmt.Errorf("invalid snapshot shape: missing version")
	}
	if *raw.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", *raw.Version)
	}

	snap := &Snapshot{
		Version:  *raw.Version,
		Entities: make(map[string][]domain.Entity),
	}

	if len(raw.Entities) > 0 {
		var collections map[string]json.RawMessage
		if err := json.Unmarshal(raw.Entities, &collections); err != nil {
			return nil, fmt.Errorf("invalid snapshot shape: entities is not an object: %w", err)
		}
		for entityType, rawList := range collections {
			var list []json.RawMessage
			if err := json.Unmarshal(rawList, &list); err != nil {
				return nil, fmt.Errorf("invalid snapshot shape: entities[%q] is not an array: %w", entityType, err)
			}
			for _, rawEntity := range list {
				e, err := decodeEntity(rawEntity)
				if err != nil {
					return nil, fmt.Errorf("invalid snapshot shape: entities[%q]: %w", entityType, err)
				}
				if e.ID() == "" {
					// No usable id, nothing to key the record by.
					continue
				}
				snap.Entities[entityType] = append(snap.Entities[entityType], e)
			}
		}
	}

	if len(raw.AuditTrail) > 0 {
		var trail []domain.Transition
		if err := json.Unmarshal(raw.AuditTrail, &trail); err != nil {
			return nil, fmt.Errorf("invalid snapshot shape: auditTrail is not an array of transitions: %w", err)
		}
		snap.AuditTrail = trail
	}

	return snap, nil
}

func decodeEntity(raw json.RawMessage) (domain.Entity, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var e domain.Entity
	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("entity is not an object: %w", err)
	}
	return e, nil
}

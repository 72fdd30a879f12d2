package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/chronicle/internal/domain"
)

// SaveEntity creates or replaces an entity under (entityType, id).
// The reference-rule check and the upsert run in one transaction so a
// violation never partially applies.
func (s *Store) SaveEntity(ctx context.Context, entityType, id string, value domain.Entity) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		if entityType == "" || id == "" {
			return domain.NewInvalidRequest("entity type and id must not be empty")
		}
		if err := s.checkSaveReferences(ctx, entityType, id, value); err != nil {
			return err
		}

		body, err := domain.MarshalCanonical(value)
		if err != nil {
			return fmt.Errorf("save entity %s/%s: %w", entityType, id, err)
		}
		_, err = s.q(ctx).ExecContext(ctx, `
			INSERT INTO entities (entity_type, entity_id, body)
			VALUES (?, ?, ?)
			ON CONFLICT(entity_type, entity_id) DO UPDATE SET body = excluded.body
		`, entityType, id, string(body))
		if err != nil {
			return fmt.Errorf("save entity %s/%s: %w", entityType, id, err)
		}
		return nil
	})
}

func (s *Store) checkSaveReferences(ctx context.Context, entityType, id string, value domain.Entity) error {
	for _, rule := range s.rules {
		if rule.FromType != entityType {
			continue
		}
		ref, _ := value[rule.Field].(string)
		if ref == "" {
			continue
		}
		var count int
		err := s.q(ctx).QueryRowContext(ctx, `
			SELECT COUNT(*) FROM entities WHERE entity_type = ? AND entity_id = ?
		`, rule.ToType, ref).Scan(&count)
		if err != nil {
			return fmt.Errorf("check reference %s.%s: %w", entityType, rule.Field, err)
		}
		if count == 0 {
			return domain.NewConflict("%s %q references %s %q which does not exist", entityType, id, rule.ToType, ref)
		}
	}
	return nil
}

// GetEntity returns the entity and true, or a zero value and false if absent.
func (s *Store) GetEntity(ctx context.Context, entityType, id string) (domain.Entity, bool, error) {
	var body string
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT body FROM entities WHERE entity_type = ? AND entity_id = ?
	`, entityType, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get entity %s/%s: %w", entityType, id, err)
	}
	e, err := decodeBody(body)
	if err != nil {
		return nil, false, fmt.Errorf("get entity %s/%s: %w", entityType, id, err)
	}
	return e, true, nil
}

// DeleteEntity removes an entity unless a reference rule still points at it.
// Deleting an absent entity is not an error.
func (s *Store) DeleteEntity(ctx context.Context, entityType, id string) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		for _, rule := range s.rules {
			if rule.ToType != entityType {
				continue
			}
			var refID string
			err := s.q(ctx).QueryRowContext(ctx, `
				SELECT entity_id FROM entities
				WHERE entity_type = ? AND json_extract(body, ?) = ?
				ORDER BY entity_id COLLATE BINARY ASC
				LIMIT 1
			`, rule.FromType, "$."+rule.Field, id).Scan(&refID)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return fmt.Errorf("check referrers of %s/%s: %w", entityType, id, err)
			}
			return domain.NewConflict("cannot delete %s %q: still referenced by %s %q", entityType, id, rule.FromType, refID)
		}

		_, err := s.q(ctx).ExecContext(ctx, `
			DELETE FROM entities WHERE entity_type = ? AND entity_id = ?
		`, entityType, id)
		if err != nil {
			return fmt.Errorf("delete entity %s/%s: %w", entityType, id, err)
		}
		return nil
	})
}

// ListEntities returns all entities of a type ordered by id.
func (s *Store) ListEntities(ctx context.Context, entityType string) ([]domain.Entity, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT body FROM entities
		WHERE entity_type = ?
		ORDER BY entity_id COLLATE BINARY ASC
	`, entityType)
	if err != nil {
		return nil, fmt.Errorf("list entities %s: %w", entityType, err)
	}
	defer rows.Close()

	var out []domain.Entity
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e, err := decodeBody(body)
		if err != nil {
			return nil, fmt.Errorf("list entities %s: %w", entityType, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

// EntityTypes returns all collection names present, ordered.
func (s *Store) EntityTypes(ctx context.Context) ([]string, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT DISTINCT entity_type FROM entities
		ORDER BY entity_type COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list entity types: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan entity type: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity types: %w", err)
	}
	return out, nil
}

func decodeBody(body string) (domain.Entity, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var e domain.Entity
	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return e, nil
}

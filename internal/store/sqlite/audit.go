package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/chronicle/internal/domain"
	"github.com/roach88/chronicle/internal/store"
)

// AppendTransition appends one record to the audit trail.
// The trail is append-only: there is no update or delete path anywhere in
// this package. Replaying a transition with an id already in the log is a
// no-op, which keeps snapshot imports idempotent.
func (s *Store) AppendTransition(ctx context.Context, t domain.Transition) error {
	metadata := "{}"
	if len(t.Metadata) > 0 {
		data, err := json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("append transition %s: marshal metadata: %w", t.ID, err)
		}
		metadata = string(data)
	}

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO audit_transitions
		(id, entity_type, entity_id, from_state, to_state, actor_id, actor_kind, reason, at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		t.ID,
		t.EntityType,
		t.EntityID,
		t.FromState,
		t.ToState,
		t.Actor.ID,
		string(t.Actor.Kind),
		t.Reason,
		t.At.UTC().Format(time.RFC3339Nano),
		metadata,
	)
	if err != nil {
		return fmt.Errorf("append transition %s: %w", t.ID, err)
	}
	return nil
}

// ListTransitions returns matching transitions oldest first.
func (s *Store) ListTransitions(ctx context.Context, f store.TransitionFilter) ([]domain.Transition, error) {
	query := `
		SELECT id, entity_type, entity_id, from_state, to_state, actor_id, actor_kind, reason, at, metadata
		FROM audit_transitions WHERE 1=1`
	args := []any{}

	if f.EntityType != "" {
		query += " AND entity_type = ?"
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		query += " AND entity_id = ?"
		args = append(args, f.EntityID)
	}
	query += " ORDER BY position ASC"

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transition
	for rows.Next() {
		var (
			t        domain.Transition
			kind     string
			at       string
			metadata string
		)
		err := rows.Scan(&t.ID, &t.EntityType, &t.EntityID, &t.FromState, &t.ToState,
			&t.Actor.ID, &kind, &t.Reason, &at, &metadata)
		if err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Actor.Kind = domain.ActorKind(kind)
		t.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse transition %s timestamp: %w", t.ID, err)
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &t.Metadata); err != nil {
				return nil, fmt.Errorf("parse transition %s metadata: %w", t.ID, err)
			}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

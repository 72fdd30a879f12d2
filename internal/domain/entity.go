package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Entity collection names used by the lifecycle services. The repository
// itself accepts any collection name; these are the ones this engine manages.
const (
	TypeEvent        = "event"
	TypeDraft        = "outbound_draft"
	TypeNotification = "notification"
	TypeCheckpoint   = "checkpoint"
)

// Entity is an opaque, schema-less record keyed by (type, id).
// The store never interprets entity contents except to read the "id" field.
type Entity map[string]any

// ID returns the entity's "id" field if it is a non-empty string.
func (e Entity) ID() string {
	id, _ := e["id"].(string)
	return id
}

// Clone returns a deep copy of the entity. The repository clones on every
// read and write so callers cannot mutate stored state through a shared
// reference.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a JSON-shaped value (maps, slices, scalars).
// Values of other types are returned as-is; entities built through ToEntity
// only ever contain JSON-shaped values.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = CloneValue(elem)
		}
		return out
	case Entity:
		return map[string]any(val.Clone())
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = CloneValue(elem)
		}
		return out
	default:
		return val
	}
}

// Ref names one entity inside a collection.
type Ref struct {
	Type string `json:"entityType"`
	ID   string `json:"entityId"`
}

// ToEntity converts a typed record to its schema-less storage form via a
// JSON round trip. Numbers survive as json.Number so large integers and
// canonical serialization stay exact.
func ToEntity(v any) (Entity, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode entity: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var e Entity
	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	return e, nil
}

// FromEntity decodes a schema-less entity into a typed record.
func FromEntity(e Entity, out any) error {
	data, err := json.Marshal(map[string]any(e))
	if err != nil {
		return fmt.Errorf("encode entity: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode entity: %w", err)
	}
	return nil
}

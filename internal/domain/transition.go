package domain

import "time"

// Transition is one immutable record in the append-only audit trail: a single
// entity's state change together with who caused it, why, and when.
//
// FromState is empty for creation transitions (the entity had no prior state).
// Metadata carries structured context such as executionId or notificationId.
type Transition struct {
	ID         string            `json:"id"`
	EntityType string            `json:"entityType"`
	EntityID   string            `json:"entityId"`
	FromState  string            `json:"fromState"`
	ToState    string            `json:"toState"`
	Actor      Actor             `json:"actor"`
	Reason     string            `json:"reason"`
	At         time.Time         `json:"at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Clone returns a copy with its own metadata map. The repository clones on
// append and on list so records handed to callers can never corrupt the trail.
func (t Transition) Clone() Transition {
	out := t
	if t.Metadata != nil {
		out.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

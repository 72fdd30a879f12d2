package domain

// SyncState is the outbound sync lifecycle of an event.
//
// State machine: local_only --request--> pending_approval --approve--> synced.
// Every transition must be justified by an audit Transition.
type SyncState string

const (
	SyncLocalOnly       SyncState = "local_only"
	SyncPendingApproval SyncState = "pending_approval"
	SyncSynced          SyncState = "synced"
)

// Event is the typed view of an "event" entity. Times are RFC 3339 strings;
// the store itself never parses them, only the conflict detector does.
type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartsAt  string    `json:"startsAt"`
	EndsAt    string    `json:"endsAt,omitempty"`
	SyncState SyncState `json:"syncState"`
}

// EventFromEntity decodes a stored entity into an Event.
func EventFromEntity(e Entity) (Event, error) {
	var ev Event
	if err := FromEntity(e, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

package domain

// NotificationStatus is the lifecycle of an approval notification.
type NotificationStatus string

const (
	NotificationPending  NotificationStatus = "pending"
	NotificationResolved NotificationStatus = "resolved"
)

// Notification is created when an outbound action enters pending_approval and
// resolved when the action is approved. It references the gated entity, which
// also gives the referential-integrity rules something to protect: an event
// with a live notification cannot be deleted.
type Notification struct {
	ID         string             `json:"id"`
	Kind       string             `json:"kind"`
	EntityType string             `json:"entityType"`
	EntityID   string             `json:"entityId"`
	Status     NotificationStatus `json:"status"`
}

// NotificationFromEntity decodes a stored entity into a Notification.
func NotificationFromEntity(e Entity) (Notification, error) {
	var n Notification
	if err := FromEntity(e, &n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

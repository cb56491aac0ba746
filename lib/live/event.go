// Package live pushes notification events to users who currently hold an open
// connection. Nothing here is durable; an offline user simply misses the event
// and picks the notification up from the store later.
package live

import (
	"time"

	"github.com/fiffu/cardnotify/lib/models"
)

type EventType string

const (
	NewNotification      EventType = "NEW_NOTIFICATION"
	NotificationRead     EventType = "NOTIFICATION_READ"
	AllNotificationsRead EventType = "ALL_NOTIFICATIONS_READ"
	NotificationDeleted  EventType = "NOTIFICATION_DELETED"
)

type Event struct {
	Type           EventType            `json:"type"`
	Timestamp      time.Time            `json:"timestamp"`
	NotificationID uint                 `json:"notification_id,omitempty"`
	Notification   *NotificationPayload `json:"notification,omitempty"`
}

// NotificationPayload carries enough of a notification to render it without
// fetching it again.
type NotificationPayload struct {
	ID       uint           `json:"id"`
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewNotificationEvent(n *models.Notification, at time.Time) Event {
	return Event{
		Type:           NewNotification,
		Timestamp:      at.UTC(),
		NotificationID: n.ID,
		Notification: &NotificationPayload{
			ID:       n.ID,
			Type:     n.Type,
			Title:    n.Title,
			Message:  n.Message,
			Metadata: n.Metadata,
		},
	}
}

func ReadEvent(id uint, at time.Time) Event {
	return Event{Type: NotificationRead, Timestamp: at.UTC(), NotificationID: id}
}

func AllReadEvent(at time.Time) Event {
	return Event{Type: AllNotificationsRead, Timestamp: at.UTC()}
}

func DeletedEvent(id uint, at time.Time) Event {
	return Event{Type: NotificationDeleted, Timestamp: at.UTC(), NotificationID: id}
}

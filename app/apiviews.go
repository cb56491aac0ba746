package app

import (
	"time"

	"github.com/fiffu/cardnotify/lib"
	"github.com/fiffu/cardnotify/lib/models"
	"github.com/fiffu/cardnotify/lib/scanner"
)

type NotificationView struct {
	ID        uint           `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	IsRead    bool           `json:"is_read"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt string         `json:"created_at"`
	ExpiresAt *string        `json:"expires_at"`
}

func (view NotificationView) From(entity models.Notification) NotificationView {
	metadata := map[string]any(entity.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	return NotificationView{
		ID:        entity.ID,
		Type:      entity.Type,
		Title:     entity.Title,
		Message:   entity.Message,
		IsRead:    entity.IsRead,
		Metadata:  metadata,
		CreatedAt: entity.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt: isoformat(entity.ExpiresAt),
	}
}

type NotificationListView struct {
	Notifications []NotificationView `json:"notifications"`
	TotalUnread   int64              `json:"total_unread"`
}

func (view NotificationListView) From(entity *lib.NotificationList) NotificationListView {
	return NotificationListView{
		Notifications: FromMany[models.Notification, NotificationView](entity.Items),
		TotalUnread:   entity.TotalUnread,
	}
}

// PushRegistrationRequest mirrors the browser's PushSubscription JSON.
type PushRegistrationRequest struct {
	Endpoint       string `json:"endpoint"`
	ExpirationTime *int64 `json:"expirationTime"` // epoch millis
	Keys           struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (req PushRegistrationRequest) Entity() *models.PushRegistration {
	reg := &models.PushRegistration{
		Endpoint: req.Endpoint,
		Keys:     models.PushKeys{P256dh: req.Keys.P256dh, Auth: req.Keys.Auth},
	}
	if req.ExpirationTime != nil {
		t := time.UnixMilli(*req.ExpirationTime).UTC()
		reg.ExpirationTime = &t
	}
	return reg
}

type MaintenanceView struct {
	Purged  int64 `json:"purged"`
	Matched int   `json:"matched"`
	Created int   `json:"created"`
	Skipped int   `json:"skipped"`
	Errored int   `json:"errored"`
}

func (view MaintenanceView) From(entity *scanner.Report) MaintenanceView {
	return MaintenanceView(*entity)
}

type Fromable[Entity any, Repr any] interface {
	From(Entity) Repr
}

func FromMany[T any, U Fromable[T, U]](elems []T) []U {
	out := make([]U, len(elems))
	for i, t := range elems {
		var u U
		out[i] = u.From(t)
	}
	return out
}

func isoformat(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Notification types. The metadata keys each type carries are listed next to
// its constant; they are a convention, the column itself is an open document.
const (
	TypeWelcome                = "welcome"                 // event
	TypePasswordReset          = "password_reset"          // event
	TypeSecurityUpdate         = "security_update"         // event, change
	TypeTwoFactor              = "two_factor"              // event, enabled
	TypeVCardView              = "vcard_view"              // event, card_id, viewer
	TypeSubscriptionUpdate     = "subscription_update"     // event, subscription_id, plan, status
	TypeSubscriptionExpiration = "subscription_expiration" // event, subscription_id, days_left
)

const (
	MetaEvent          = "event"
	MetaSubscriptionID = "subscription_id"
	MetaDaysLeft       = "days_left"
)

type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `gorm:"index" json:"type"`
	IsRead    bool      `gorm:"default:false;index" json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`

	Metadata  datatypes.JSONMap `json:"metadata"`
	ExpiresAt *time.Time        `gorm:"index" json:"expires_at"` // nil is never purged

	// Set only for notifications that must not be duplicated, see ReminderKey.
	IdempotencyKey *string `gorm:"uniqueIndex" json:"-"`
}

type Notifications []Notification

func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}

// ReminderKey identifies the (user, subscription, offset) tuple that an
// expiration reminder may be created for at most once.
func ReminderKey(userID, subscriptionID uint, daysLeft int) string {
	return fmt.Sprintf("%s:%d:%d:%d", TypeSubscriptionExpiration, userID, subscriptionID, daysLeft)
}

package models

import "time"

type PushKeys struct {
	P256dh string `gorm:"column:p256dh;not null" json:"p256dh"`
	Auth   string `gorm:"not null" json:"auth"`
}

// PushRegistration is one browser endpoint a user has subscribed for web push.
// A user may hold many, an endpoint belongs to exactly one.
type PushRegistration struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"index;not null" json:"user_id"`
	Endpoint       string     `gorm:"uniqueIndex;not null" json:"endpoint"`
	Keys           PushKeys   `gorm:"embedded;embeddedPrefix:keys_" json:"keys"`
	ExpirationTime *time.Time `json:"expiration_time"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"-"`
}

type PushRegistrations []PushRegistration

package models

import (
	"time"

	"gorm.io/gorm"
)

const SubscriptionActive = "active"

type Plan struct {
	gorm.Model
	Name string
}

type Subscription struct {
	gorm.Model
	UserID  uint      `gorm:"index"`
	PlanID  uint
	EndDate time.Time `gorm:"index"`
	Status  string    `gorm:"index"`

	Plan Plan
}

type Subscriptions []Subscription

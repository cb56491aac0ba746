package store

import (
	"context"
	"time"

	"github.com/fiffu/cardnotify/lib/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Users is the read side of the user directory.
type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db}
}

func (u *Users) FindByID(ctx context.Context, id uint) (*models.User, error) {
	user := &models.User{}
	if err := u.db.WithContext(ctx).First(user, id).Error; err != nil {
		return nil, notFound(err, "find user")
	}
	return user, nil
}

// Subscriptions reads billing state. Nothing in this engine writes to it.
type Subscriptions struct {
	db *gorm.DB
}

func NewSubscriptions(db *gorm.DB) *Subscriptions {
	return &Subscriptions{db}
}

// ActiveEndingBetween returns active subscriptions whose end date lies in the
// closed interval [start, end], with their plan loaded.
func (s *Subscriptions) ActiveEndingBetween(ctx context.Context, start, end time.Time) (models.Subscriptions, error) {
	subs := models.Subscriptions{}
	tx := s.db.WithContext(ctx).
		InnerJoins("Plan").
		Where("subscriptions.status = ?", models.SubscriptionActive).
		Where("subscriptions.end_date BETWEEN ? AND ?", start.UTC(), end.UTC()).
		Find(&subs)
	return subs, errors.Wrap(tx.Error, "find expiring subscriptions")
}

func (s *Subscriptions) Get(ctx context.Context, id uint) (*models.Subscription, error) {
	sub := &models.Subscription{}
	if err := s.db.WithContext(ctx).First(sub, id).Error; err != nil {
		return nil, notFound(err, "get subscription")
	}
	return sub, nil
}

func (s *Subscriptions) FindPlan(ctx context.Context, id uint) (*models.Plan, error) {
	plan := &models.Plan{}
	if err := s.db.WithContext(ctx).First(plan, id).Error; err != nil {
		return nil, notFound(err, "find plan")
	}
	return plan, nil
}

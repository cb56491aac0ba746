package store

import (
	"context"
	"sort"
	"time"

	"github.com/fiffu/cardnotify/lib/models"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Notifications struct {
	db *gorm.DB
}

func NewNotifications(db *gorm.DB) *Notifications {
	return &Notifications{db}
}

type ListFilter struct {
	Limit      int
	Offset     int
	UnreadOnly bool
	Type       string
}

func (s *Notifications) Create(ctx context.Context, n *models.Notification) error {
	if n.UserID == 0 {
		return errors.Wrap(ErrInvalid, "notification requires a user")
	}
	tx := s.db.WithContext(ctx).Clauses(clause.Returning{}).Create(n)
	return errors.Wrap(tx.Error, "create notification")
}

// CreateIfAbsent inserts n unless a row with the same idempotency key already
// exists. The unique index does the check, so concurrent callers cannot both
// succeed.
func (s *Notifications) CreateIfAbsent(ctx context.Context, n *models.Notification) (bool, error) {
	if n.UserID == 0 || n.IdempotencyKey == nil {
		return false, errors.Wrap(ErrInvalid, "conditional insert requires a user and an idempotency key")
	}
	tx := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "idempotency_key"}}, DoNothing: true}).
		Create(n)
	if err := tx.Error; err != nil {
		return false, errors.Wrap(err, "create notification")
	}
	return tx.RowsAffected == 1, nil
}

// FindExisting returns the first notification of the given user and type whose
// metadata holds every key/value pair in filter, or nil if there is none.
func (s *Notifications) FindExisting(ctx context.Context, userID uint, typ string, filter map[string]any) (*models.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ? AND type = ?", userID, typ)

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q = q.Where(datatypes.JSONQuery("metadata").Equals(filter[k], k))
	}

	var found models.Notifications
	if err := q.Limit(1).Find(&found).Error; err != nil {
		return nil, errors.Wrap(err, "find existing notification")
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (s *Notifications) Get(ctx context.Context, id uint) (*models.Notification, error) {
	n := &models.Notification{}
	if err := s.db.WithContext(ctx).First(n, id).Error; err != nil {
		return nil, notFound(err, "get notification")
	}
	return n, nil
}

func (s *Notifications) MarkRead(ctx context.Context, id uint) (*models.Notification, error) {
	tx := s.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).Update("is_read", true)
	if err := tx.Error; err != nil {
		return nil, errors.Wrap(err, "mark notification read")
	}
	if tx.RowsAffected == 0 {
		return nil, errors.Wrap(ErrNotFound, "mark notification read")
	}
	return s.Get(ctx, id)
}

func (s *Notifications) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	tx := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return tx.RowsAffected, errors.Wrap(tx.Error, "mark all notifications read")
}

func (s *Notifications) Delete(ctx context.Context, id uint) error {
	tx := s.db.WithContext(ctx).Delete(&models.Notification{}, id)
	if err := tx.Error; err != nil {
		return errors.Wrap(err, "delete notification")
	}
	if tx.RowsAffected == 0 {
		return errors.Wrap(ErrNotFound, "delete notification")
	}
	return nil
}

// DeleteExpired removes every notification whose expiry is before now.
// Notifications without an expiry are kept.
func (s *Notifications) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tx := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", now.UTC()).
		Delete(&models.Notification{})
	return tx.RowsAffected, errors.Wrap(tx.Error, "delete expired notifications")
}

// List returns a page of the user's notifications, newest first, along with
// the user's total unread count regardless of paging.
func (s *Notifications) List(ctx context.Context, userID uint, filter ListFilter) (models.Notifications, int64, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.UnreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	items := models.Notifications{}
	if err := q.Order("created_at desc").Order("id desc").Find(&items).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list notifications")
	}

	var unread int64
	tx := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&unread)
	if err := tx.Error; err != nil {
		return nil, 0, errors.Wrap(err, "count unread notifications")
	}
	return items, unread, nil
}

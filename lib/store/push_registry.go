package store

import (
	"context"

	"github.com/fiffu/cardnotify/lib/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PushRegistry struct {
	db *gorm.DB
}

func NewPushRegistry(db *gorm.DB) *PushRegistry {
	return &PushRegistry{db}
}

func (r *PushRegistry) ListForUser(ctx context.Context, userID uint) (models.PushRegistrations, error) {
	regs := models.PushRegistrations{}
	tx := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&regs)
	return regs, errors.Wrap(tx.Error, "list push registrations")
}

// Add stores reg. Registering an endpoint that is already known moves it to
// reg's owner and refreshes its keys.
func (r *PushRegistry) Add(ctx context.Context, reg *models.PushRegistration) error {
	if reg.UserID == 0 || reg.Endpoint == "" || reg.Keys.P256dh == "" || reg.Keys.Auth == "" {
		return errors.Wrap(ErrInvalid, "push registration requires user, endpoint and keys")
	}
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "keys_p256dh", "keys_auth", "expiration_time", "updated_at"}),
		}).
		Create(reg)
	return errors.Wrap(tx.Error, "add push registration")
}

func (r *PushRegistry) RemoveByIDs(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).Delete(&models.PushRegistration{}, ids)
	return tx.RowsAffected, errors.Wrap(tx.Error, "remove push registrations")
}

func (r *PushRegistry) RemoveEndpoint(ctx context.Context, userID uint, endpoint string) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&models.PushRegistration{})
	return tx.RowsAffected, errors.Wrap(tx.Error, "remove push endpoint")
}

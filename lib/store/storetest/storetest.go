// Package storetest opens throwaway databases for tests.
package storetest

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/fiffu/cardnotify/lib/models"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated sqlite database backed by a file in t's temp dir.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sqlite")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, Name: email}
	require.NoError(t, db.Create(user).Error)
	return user
}

func CreateSubscription(t *testing.T, db *gorm.DB, userID uint, planName string, endDate time.Time, status string) *models.Subscription {
	t.Helper()
	plan := &models.Plan{Name: planName}
	require.NoError(t, db.Create(plan).Error)

	sub := &models.Subscription{UserID: userID, PlanID: plan.ID, EndDate: endDate.UTC(), Status: status}
	require.NoError(t, db.Create(sub).Error)
	sub.Plan = *plan
	return sub
}

// MetaInt reads a numeric metadata value back from a scanned row, where
// numbers arrive as json.Number.
func MetaInt(t *testing.T, meta datatypes.JSONMap, key string) int64 {
	t.Helper()
	num, ok := meta[key].(json.Number)
	require.True(t, ok, "metadata %q is %T, not a number", key, meta[key])
	v, err := num.Int64()
	require.NoError(t, err)
	return v
}

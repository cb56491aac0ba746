package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/fiffu/cardnotify/lib/models"
	"github.com/fiffu/cardnotify/lib/store"
	"github.com/fiffu/cardnotify/lib/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers_FindByID(t *testing.T) {
	db := storetest.Open(t)
	user := storetest.CreateUser(t, db, "ada@example.com")
	users := store.NewUsers(db)

	found, err := users.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", found.Email)

	_, err = users.FindByID(context.Background(), user.ID+1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubscriptions_ActiveEndingBetween(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t)
	subs := store.NewSubscriptions(db)

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	inside := storetest.CreateSubscription(t, db, 1, "Pro", day.Add(15*time.Hour), models.SubscriptionActive)
	storetest.CreateSubscription(t, db, 1, "Pro", day.Add(15*time.Hour), "cancelled")
	storetest.CreateSubscription(t, db, 1, "Pro", day.Add(24*time.Hour), models.SubscriptionActive)
	storetest.CreateSubscription(t, db, 1, "Pro", day.Add(-time.Second), models.SubscriptionActive)

	found, err := subs.ActiveEndingBetween(ctx, day, day.Add(24*time.Hour-time.Nanosecond))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, inside.ID, found[0].ID)
	assert.Equal(t, "Pro", found[0].Plan.Name)

	plan, err := subs.FindPlan(ctx, inside.PlanID)
	require.NoError(t, err)
	assert.Equal(t, "Pro", plan.Name)

	_, err = subs.Get(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

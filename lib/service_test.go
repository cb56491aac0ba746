package lib_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fiffu/cardnotify/lib"
	"github.com/fiffu/cardnotify/lib/live"
	"github.com/fiffu/cardnotify/lib/models"
	"github.com/fiffu/cardnotify/lib/notify"
	"github.com/fiffu/cardnotify/lib/scanner"
	"github.com/fiffu/cardnotify/lib/store"
	"github.com/fiffu/cardnotify/lib/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	hub      *live.Hub
	notifier *notify.Notifier
	svc      *lib.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := storetest.Open(t)
	log := zap.NewNop()

	notifications := store.NewNotifications(db)
	subscriptions := store.NewSubscriptions(db)
	hub := live.NewHub(log)
	broadcast := live.NewBroadcaster(hub)
	notifier := notify.New(log, notify.Deps{
		Store:       notifications,
		Users:       store.NewUsers(db),
		Broadcaster: broadcast,
	})
	sc := scanner.New(log, notifications, subscriptions, notifier, time.UTC)

	lc := fxtest.NewLifecycle(t)
	svc := lib.NewService(lc, log, notifications, store.NewPushRegistry(db), subscriptions, notifier, sc, broadcast)
	lc.RequireStart()
	t.Cleanup(lc.RequireStop)

	return &fixture{db, hub, notifier, svc}
}

func (f *fixture) seed(t *testing.T, userID uint, titles ...string) models.Notifications {
	t.Helper()
	out := models.Notifications{}
	for _, title := range titles {
		n, err := f.svc.Notify(context.Background(), userID, notify.EventSpec{Type: models.TypeWelcome, Title: title})
		require.NoError(t, err)
		out = append(out, *n)
	}
	f.notifier.Wait()
	return out
}

func nextEvent(t *testing.T, events <-chan []byte) live.Event {
	t.Helper()
	select {
	case msg := <-events:
		evt := live.Event{}
		require.NoError(t, json.Unmarshal(msg, &evt))
		return evt
	case <-time.After(time.Second):
		t.Fatal("no live event received")
		return live.Event{}
	}
}

func TestService_ListNotifications(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seed(t, 1, "a", "b", "c")
	f.seed(t, 2, "other")

	list, err := f.svc.ListNotifications(ctx, 1, lib.ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, list.Items, 2)
	assert.EqualValues(t, 3, list.TotalUnread)

	list, err = f.svc.ListNotifications(ctx, 1, lib.ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)

	list, err = f.svc.ListNotifications(ctx, 1, lib.ListOptions{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, list.Items, 3)
}

func TestService_MarkRead(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	seeded := f.seed(t, 1, "a", "b")
	_, events := f.hub.Subscribe(1)

	n, err := f.svc.MarkRead(ctx, 1, seeded[0].ID)
	require.NoError(t, err)
	assert.True(t, n.IsRead)

	evt := nextEvent(t, events)
	assert.Equal(t, live.NotificationRead, evt.Type)
	assert.Equal(t, seeded[0].ID, evt.NotificationID)

	list, err := f.svc.ListNotifications(ctx, 1, lib.ListOptions{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, seeded[1].ID, list.Items[0].ID)
	assert.EqualValues(t, 1, list.TotalUnread)
}

func TestService_OtherUsersNotificationIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	seeded := f.seed(t, 1, "mine")

	_, err := f.svc.MarkRead(ctx, 2, seeded[0].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = f.svc.Delete(ctx, 2, seeded[0].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := f.svc.ListNotifications(ctx, 1, lib.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.False(t, list.Items[0].IsRead)
}

func TestService_MarkAllRead(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seed(t, 1, "a", "b")
	_, events := f.hub.Subscribe(1)

	count, err := f.svc.MarkAllRead(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	assert.Equal(t, live.AllNotificationsRead, nextEvent(t, events).Type)

	list, err := f.svc.ListNotifications(ctx, 1, lib.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, list.TotalUnread)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	seeded := f.seed(t, 1, "a")
	_, events := f.hub.Subscribe(1)

	require.NoError(t, f.svc.Delete(ctx, 1, seeded[0].ID))
	evt := nextEvent(t, events)
	assert.Equal(t, live.NotificationDeleted, evt.Type)
	assert.Equal(t, seeded[0].ID, evt.NotificationID)

	assert.ErrorIs(t, f.svc.Delete(ctx, 1, seeded[0].ID), store.ErrNotFound)
}

func TestService_NotifyReachesOnlineUser(t *testing.T) {
	f := setup(t)
	user := storetest.CreateUser(t, f.db, "ada@example.com")
	_, events := f.hub.Subscribe(user.ID)

	n, err := f.svc.Notify(context.Background(), user.ID, notify.Welcome())
	require.NoError(t, err)

	evt := nextEvent(t, events)
	assert.Equal(t, live.NewNotification, evt.Type)
	require.NotNil(t, evt.Notification)
	assert.Equal(t, n.ID, evt.Notification.ID)
	assert.Equal(t, "Welcome, ada@example.com", evt.Notification.Title)
}

func TestService_PushRegistrations(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	reg := &models.PushRegistration{
		Endpoint: "https://push.example.com/abc",
		Keys:     models.PushKeys{P256dh: "p256dh", Auth: "auth"},
	}

	require.NoError(t, f.svc.RegisterPush(ctx, 7, reg))
	assert.EqualValues(t, 7, reg.UserID)

	assert.ErrorIs(t, f.svc.UnregisterPush(ctx, 8, reg.Endpoint), store.ErrNotFound)
	require.NoError(t, f.svc.UnregisterPush(ctx, 7, reg.Endpoint))
	assert.ErrorIs(t, f.svc.UnregisterPush(ctx, 7, reg.Endpoint), store.ErrNotFound)

	err := f.svc.RegisterPush(ctx, 7, &models.PushRegistration{Endpoint: "https://push.example.com/nokeys"})
	assert.ErrorIs(t, err, store.ErrInvalid)
}

func TestService_NotifySubscriptionUpdate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	sub := storetest.CreateSubscription(t, f.db, 3, "Pro", time.Now().Add(30*24*time.Hour), models.SubscriptionActive)

	n, err := f.svc.NotifySubscriptionUpdate(ctx, sub.ID, "renewed")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n.UserID)
	assert.Equal(t, models.TypeSubscriptionUpdate, n.Type)
	assert.Equal(t, "Your Pro subscription is now renewed.", n.Message)

	_, err = f.svc.NotifySubscriptionUpdate(ctx, sub.ID+100, "renewed")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.NotifySubscriptionUpdate(ctx, sub.ID, "")
	assert.ErrorIs(t, err, store.ErrInvalid)
}

func TestService_RunDailyMaintenance(t *testing.T) {
	f := setup(t)
	storetest.CreateSubscription(t, f.db, 4, "Team", time.Now().Add(24*time.Hour), models.SubscriptionActive)

	report, err := f.svc.RunDailyMaintenance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	report, err = f.svc.RunDailyMaintenance(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Created)
}

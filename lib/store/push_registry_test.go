package store_test

import (
	"context"
	"testing"

	"github.com/fiffu/cardnotify/lib/models"
	"github.com/fiffu/cardnotify/lib/store"
	"github.com/fiffu/cardnotify/lib/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registration(userID uint, endpoint string) *models.PushRegistration {
	return &models.PushRegistration{
		UserID:   userID,
		Endpoint: endpoint,
		Keys:     models.PushKeys{P256dh: "p256dh-" + endpoint, Auth: "auth-" + endpoint},
	}
}

func TestPushRegistry_AddListRemove(t *testing.T) {
	ctx := context.Background()
	r := store.NewPushRegistry(storetest.Open(t))

	a, b := registration(1, "https://push.example/a"), registration(1, "https://push.example/b")
	require.NoError(t, r.Add(ctx, a))
	require.NoError(t, r.Add(ctx, b))
	require.NoError(t, r.Add(ctx, registration(2, "https://push.example/c")))

	regs, err := r.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, "p256dh-https://push.example/a", regs[0].Keys.P256dh)

	removed, err := r.RemoveByIDs(ctx, []uint{regs[0].ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	regs, err = r.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, b.Endpoint, regs[0].Endpoint)

	removed, err = r.RemoveByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestPushRegistry_EndpointIsUnique(t *testing.T) {
	ctx := context.Background()
	r := store.NewPushRegistry(storetest.Open(t))

	require.NoError(t, r.Add(ctx, registration(1, "https://push.example/shared")))

	moved := registration(2, "https://push.example/shared")
	moved.Keys.Auth = "rotated"
	require.NoError(t, r.Add(ctx, moved))

	regs, err := r.ListForUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, regs)

	regs, err = r.ListForUser(ctx, 2)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "rotated", regs[0].Keys.Auth)
}

func TestPushRegistry_Validation(t *testing.T) {
	r := store.NewPushRegistry(storetest.Open(t))

	err := r.Add(context.Background(), &models.PushRegistration{UserID: 1, Endpoint: "https://push.example/a"})
	assert.ErrorIs(t, err, store.ErrInvalid)
}

func TestPushRegistry_RemoveEndpointIsScopedToUser(t *testing.T) {
	ctx := context.Background()
	r := store.NewPushRegistry(storetest.Open(t))
	require.NoError(t, r.Add(ctx, registration(1, "https://push.example/a")))

	removed, err := r.RemoveEndpoint(ctx, 2, "https://push.example/a")
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = r.RemoveEndpoint(ctx, 1, "https://push.example/a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}

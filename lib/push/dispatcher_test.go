package push_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/fiffu/cardnotify/lib/models"
	"github.com/fiffu/cardnotify/lib/push"
	"github.com/fiffu/cardnotify/lib/store"
	"github.com/fiffu/cardnotify/lib/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type response struct {
	status int
	err    error
}

// fakeClient answers per endpoint and records what it was asked to send.
type fakeClient struct {
	mu        sync.Mutex
	responses map[string]response
	sent      map[string][]byte
}

func newFakeClient(responses map[string]response) *fakeClient {
	return &fakeClient{responses: responses, sent: map[string][]byte{}}
}

func (c *fakeClient) Send(ctx context.Context, endpoint string, keys models.PushKeys, payload []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent[endpoint] = payload
	if r, ok := c.responses[endpoint]; ok {
		return r.status, r.err
	}
	return http.StatusCreated, nil
}

func register(t *testing.T, r *store.PushRegistry, userID uint, endpoint string) {
	t.Helper()
	require.NoError(t, r.Add(context.Background(), &models.PushRegistration{
		UserID: userID, Endpoint: endpoint, Keys: models.PushKeys{P256dh: "k", Auth: "a"},
	}))
}

func TestDeliver_PrunesGoneEndpoints(t *testing.T) {
	ctx := context.Background()
	registry := store.NewPushRegistry(storetest.Open(t))
	register(t, registry, 1, "https://push.example/a")
	register(t, registry, 1, "https://push.example/b")

	client := newFakeClient(map[string]response{
		"https://push.example/a": {http.StatusGone, errors.New("gone")},
	})
	d := push.NewDispatcher(zap.NewNop(), registry, client)

	report, err := d.Deliver(ctx, 1, map[string]string{"title": "hi"})
	require.NoError(t, err)
	require.Len(t, report, 2)

	byEndpoint := map[string]push.DeliveryResult{}
	for _, res := range report {
		byEndpoint[res.Endpoint] = res
	}
	assert.Equal(t, push.Failed, byEndpoint["https://push.example/a"].Status)
	assert.True(t, byEndpoint["https://push.example/a"].Pruned)
	assert.Equal(t, push.Sent, byEndpoint["https://push.example/b"].Status)
	assert.JSONEq(t, `{"title":"hi"}`, string(client.sent["https://push.example/b"]))

	regs, err := registry.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "https://push.example/b", regs[0].Endpoint)
}

func TestDeliver_NotFoundAlsoPrunes(t *testing.T) {
	registry := store.NewPushRegistry(storetest.Open(t))
	register(t, registry, 1, "https://push.example/a")

	d := push.NewDispatcher(zap.NewNop(), registry, newFakeClient(map[string]response{
		"https://push.example/a": {http.StatusNotFound, errors.New("not found")},
	}))
	report, err := d.Deliver(context.Background(), 1, "x")
	require.NoError(t, err)
	assert.True(t, report[0].Pruned)

	regs, err := registry.ListForUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, regs)
}

func TestDeliver_TransientFailureKeepsRegistration(t *testing.T) {
	ctx := context.Background()
	registry := store.NewPushRegistry(storetest.Open(t))
	register(t, registry, 1, "https://push.example/flaky")
	register(t, registry, 1, "https://push.example/timeout")
	register(t, registry, 1, "https://push.example/ok")

	d := push.NewDispatcher(zap.NewNop(), registry, newFakeClient(map[string]response{
		"https://push.example/flaky":   {http.StatusServiceUnavailable, errors.New("unavailable")},
		"https://push.example/timeout": {0, context.DeadlineExceeded},
	}))

	report, err := d.Deliver(ctx, 1, "x")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(push.Failed))
	assert.Equal(t, 1, report.Count(push.Sent))
	for _, res := range report {
		assert.False(t, res.Pruned, res.Endpoint)
	}

	regs, err := registry.ListForUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, regs, 3)
}

func TestDeliver_NoRegistrations(t *testing.T) {
	client := newFakeClient(nil)
	d := push.NewDispatcher(zap.NewNop(), store.NewPushRegistry(storetest.Open(t)), client)

	report, err := d.Deliver(context.Background(), 42, map[string]string{"type": "welcome"})
	require.NoError(t, err)
	assert.NotNil(t, report)
	assert.Empty(t, report)
	assert.Empty(t, client.sent)
}

type brokenRegistry struct{}

func (brokenRegistry) ListForUser(context.Context, uint) (models.PushRegistrations, error) {
	return nil, errors.New("database is locked")
}

func (brokenRegistry) RemoveByIDs(context.Context, []uint) (int64, error) { return 0, nil }

func TestDeliver_RegistryFailure(t *testing.T) {
	d := push.NewDispatcher(zap.NewNop(), brokenRegistry{}, newFakeClient(nil))

	_, err := d.Deliver(context.Background(), 1, "x")
	assert.Error(t, err)
}

package senders

import (
	"context"
	"net/http"
	"testing"

	"github.com/fiffu/cardnotify/config"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const messagesURL = `=~/example\.com/messages\z`

func newTestMailer(t *testing.T) (*mailgunMailer, *httpmock.MockTransport) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Mailgun.Domain = "example.com"
	cfg.Mailgun.APIKey = "key-test"
	cfg.Mailgun.SenderFrom = "notifications@example.com"
	cfg.Mailgun.TimeoutSecs = 5

	transport := httpmock.NewMockTransport()
	return newMailgunMailer(zap.NewNop(), cfg, transport), transport
}

func TestMailgun_Send(t *testing.T) {
	m, transport := newTestMailer(t)
	transport.RegisterResponder(http.MethodPost, messagesURL,
		httpmock.NewStringResponder(http.StatusOK, `{"id": "<20260501.1@example.com>", "message": "Queued. Thank you."}`))

	id, err := m.Send(context.Background(), "Security Update", "<p>hi</p>", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "<20260501.1@example.com>", id)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestMailgun_SendRejected(t *testing.T) {
	m, transport := newTestMailer(t)
	transport.RegisterResponder(http.MethodPost, messagesURL,
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"message": "Invalid private key"}`))

	_, err := m.Send(context.Background(), "Security Update", "<p>hi</p>", "ada@example.com")
	assert.Error(t, err)
}

func TestMailgun_RequiresRecipient(t *testing.T) {
	m, transport := newTestMailer(t)

	_, err := m.Send(context.Background(), "Security Update", "<p>hi</p>", "")
	assert.Error(t, err)
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestNewMailer_DisabledWithoutCredentials(t *testing.T) {
	assert.Nil(t, NewMailer(nil, zap.NewNop(), &config.Config{}, http.DefaultTransport))
}

package senders

import (
	"context"
	"net/http"
	"time"

	"github.com/fiffu/cardnotify/config"
	"github.com/mailgun/mailgun-go/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// mailgunMailer sends notification copies through the Mailgun HTTP API. The
// client is built once and rides on the shared outbound transport.
type mailgunMailer struct {
	log     *zap.Logger
	mg      *mailgun.MailgunImpl
	from    string
	timeout time.Duration
}

func newMailgunMailer(log *zap.Logger, cfg *config.Config, transport http.RoundTripper) *mailgunMailer {
	mg := mailgun.NewMailgun(cfg.Mailgun.Domain, cfg.Mailgun.APIKey)
	mg.SetClient(&http.Client{Transport: transport})

	return &mailgunMailer{
		log:     log.Named("mailgun"),
		mg:      mg,
		from:    cfg.Mailgun.SenderFrom,
		timeout: time.Duration(cfg.Mailgun.TimeoutSecs) * time.Second,
	}
}

func (m *mailgunMailer) Send(ctx context.Context, subject, body, recipient string) (string, error) {
	if recipient == "" {
		return "", errors.New("email recipient is required")
	}

	// The body is HTML only; SetHtml sets the matching MIME part.
	message := m.mg.NewMessage(m.from, subject, "", recipient)
	message.SetHtml(body)

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	status, id, err := m.mg.Send(ctx, message)
	if err != nil {
		return "", errors.Wrap(err, "mailgun send")
	}
	m.log.Sugar().Debugw("Email accepted", "message_id", id, "status", status)
	return id, nil
}

package senders

import (
	"context"
	"net/http"

	"github.com/fiffu/cardnotify/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Mailer sends one HTML email and returns the provider's message id.
type Mailer interface {
	Send(ctx context.Context, subject, body, recipient string) (string, error)
}

// NewMailer returns nil when mailgun is not configured; callers treat a nil
// Mailer as "email disabled".
func NewMailer(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Mailer {
	if !cfg.MailgunEnabled() {
		log.Sugar().Info("Email delivery is disabled since mailgun is not configured")
		return nil
	}
	return newMailgunMailer(log, cfg, transport)
}

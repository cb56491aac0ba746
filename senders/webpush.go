package senders

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/fiffu/cardnotify/config"
	"github.com/fiffu/cardnotify/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// WebPush speaks the browser push protocol: it encrypts each payload for the
// target endpoint's keys and signs the request with the server's VAPID keys.
type WebPush struct {
	log        *zap.Logger
	httpClient *http.Client
	options    webpush.Options
	timeout    time.Duration
}

func NewWebPush(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, transport http.RoundTripper) *WebPush {
	if cfg.WebPush.VAPIDPrivateKey == "" || cfg.WebPush.VAPIDPublicKey == "" {
		log.Sugar().Warn("WEBPUSH_VAPID_* keys are not set, push endpoints will reject deliveries")
	}
	return newWebPush(log, &http.Client{Transport: transport}, webpush.Options{
		Subscriber:      cfg.WebPush.Subscriber,
		VAPIDPublicKey:  cfg.WebPush.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.WebPush.VAPIDPrivateKey,
		TTL:             cfg.WebPush.TTLSecs,
	}, time.Duration(cfg.WebPush.TimeoutSecs)*time.Second)
}

func newWebPush(log *zap.Logger, httpClient *http.Client, options webpush.Options, timeout time.Duration) *WebPush {
	options.HTTPClient = httpClient
	return &WebPush{log, httpClient, options, timeout}
}

// StatusError is returned when the push service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push service responded %d: %s", e.StatusCode, e.Body)
}

// Send delivers payload to one endpoint. The returned status code is zero when
// no response was received.
func (w *WebPush) Send(ctx context.Context, endpoint string, keys models.PushKeys, payload []byte) (int, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	sub := &webpush.Subscription{
		Endpoint: endpoint,
		Keys:     webpush.Keys{P256dh: keys.P256dh, Auth: keys.Auth},
	}
	opts := w.options
	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &opts)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &StatusError{resp.StatusCode, string(body)}
	}
	return resp.StatusCode, nil
}

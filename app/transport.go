package app

import (
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewTransport is the round tripper shared by every outbound client (push
// services, mailgun). It logs each request without its body.
func NewTransport(lc fx.Lifecycle, log *zap.Logger) http.RoundTripper {
	return &transport{http.DefaultTransport, log.Named("outbound")}
}

type transport struct {
	base http.RoundTripper
	log  *zap.Logger
}

func (tpt *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := tpt.base.RoundTrip(req)
	elapsed := time.Since(start)

	if err != nil {
		tpt.log.Sugar().Warnw("Outbound request failed",
			"method", req.Method, "host", req.URL.Host, "elapsed_msecs", elapsed.Milliseconds(), "err", err)
		return nil, err
	}
	tpt.log.Sugar().Debugw("Outbound request",
		"method", req.Method, "host", req.URL.Host, "status", resp.StatusCode, "elapsed_msecs", elapsed.Milliseconds())
	return resp, nil
}

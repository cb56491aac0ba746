// Package push fans a payload out to every browser endpoint a user has
// registered, and forgets endpoints the push service says are gone.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/fiffu/cardnotify/lib/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Client is the push-protocol transport. statusCode is zero when the request
// never got a response.
type Client interface {
	Send(ctx context.Context, endpoint string, keys models.PushKeys, payload []byte) (statusCode int, err error)
}

type Registry interface {
	ListForUser(ctx context.Context, userID uint) (models.PushRegistrations, error)
	RemoveByIDs(ctx context.Context, ids []uint) (int64, error)
}

type Status string

const (
	Sent   Status = "sent"
	Failed Status = "failed"
)

type DeliveryResult struct {
	Endpoint string `json:"endpoint"`
	Status   Status `json:"status"`
	Pruned   bool   `json:"pruned,omitempty"`
	Error    string `json:"error,omitempty"`
}

type DeliveryReport []DeliveryResult

func (r DeliveryReport) Count(status Status) int {
	n := 0
	for _, res := range r {
		if res.Status == status {
			n++
		}
	}
	return n
}

type Dispatcher struct {
	log      *zap.Logger
	registry Registry
	client   Client
	timeout  time.Duration // per endpoint attempt
}

func NewDispatcher(log *zap.Logger, registry Registry, client Client) *Dispatcher {
	return &Dispatcher{log, registry, client, 15 * time.Second}
}

// IsGone reports whether a push service status means the endpoint will never
// accept deliveries again.
func IsGone(statusCode int) bool {
	return statusCode == http.StatusGone || statusCode == http.StatusNotFound
}

// Deliver attempts every endpoint of userID independently. A user without
// registrations gets an empty report.
func (d *Dispatcher) Deliver(ctx context.Context, userID uint, payload any) (DeliveryReport, error) {
	regs, err := d.registry.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return DeliveryReport{}, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode push payload")
	}

	report := make(DeliveryReport, len(regs))
	gone := make([]bool, len(regs))

	var wg sync.WaitGroup
	for i := range regs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			report[i], gone[i] = d.attempt(ctx, &regs[i], body)
		}(i)
	}
	wg.Wait()

	var prune []uint
	for i, isGone := range gone {
		if isGone {
			prune = append(prune, regs[i].ID)
		}
	}
	if len(prune) > 0 {
		removed, err := d.registry.RemoveByIDs(ctx, prune)
		if err != nil {
			d.log.Sugar().Errorw("Failed to prune push registrations", "user_id", userID, "ids", prune, "err", err)
		} else {
			d.log.Sugar().Infow("Pruned gone push registrations", "user_id", userID, "removed", removed)
		}
	}

	return report, nil
}

func (d *Dispatcher) attempt(ctx context.Context, reg *models.PushRegistration, body []byte) (DeliveryResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	res := DeliveryResult{Endpoint: reg.Endpoint, Status: Sent}
	status, err := d.client.Send(ctx, reg.Endpoint, reg.Keys, body)
	if err == nil {
		return res, false
	}

	res.Status = Failed
	res.Error = err.Error()
	if IsGone(status) {
		res.Pruned = true
		d.log.Sugar().Infow("Push endpoint is gone", "user_id", reg.UserID, "registration_id", reg.ID, "status", status)
		return res, true
	}

	d.log.Sugar().Warnw("Push delivery failed", "user_id", reg.UserID, "registration_id", reg.ID, "status", status, "err", err)
	return res, false
}

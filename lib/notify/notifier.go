// Package notify is the single entry point for raising notifications. It
// persists first, then hands the notification to the live and offline
// channels without letting their failures reach the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/fiffu/cardnotify/lib/live"
	"github.com/fiffu/cardnotify/lib/models"
	"github.com/fiffu/cardnotify/lib/push"
	"github.com/fiffu/cardnotify/senders"
	"github.com/fiffu/cardnotify/senders/email"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	CreateIfAbsent(ctx context.Context, n *models.Notification) (bool, error)
}

type Directory interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, userID uint, payload any) (push.DeliveryReport, error)
}

type Notifier struct {
	log       *zap.Logger
	store     Store
	users     Directory
	broadcast *live.Broadcaster
	push      Deliverer
	mailer    senders.Mailer

	now             func() time.Time
	deliveryTimeout time.Duration
	inflight        sync.WaitGroup
}

type Deps struct {
	Store       Store
	Users       Directory
	Broadcaster *live.Broadcaster
	Push        Deliverer      // optional
	Mailer      senders.Mailer // optional
	Now         func() time.Time
}

func New(log *zap.Logger, deps Deps) *Notifier {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Notifier{
		log:             log,
		store:           deps.Store,
		users:           deps.Users,
		broadcast:       deps.Broadcaster,
		push:            deps.Push,
		mailer:          deps.Mailer,
		now:             now,
		deliveryTimeout: time.Minute,
	}
}

// Notify always creates a new notification for userID. Only a failure to
// persist it is returned.
func (n *Notifier) Notify(ctx context.Context, userID uint, spec EventSpec) (*models.Notification, error) {
	record, user, err := n.build(ctx, userID, spec)
	if err != nil {
		return nil, err
	}
	if err := n.store.Create(ctx, record); err != nil {
		return nil, err
	}
	n.fanOut(ctx, record, user, spec)
	return record, nil
}

// NotifyOnce creates the notification unless one with the same idempotency
// key exists. created is false, with a nil notification, when it already did.
func (n *Notifier) NotifyOnce(ctx context.Context, userID uint, spec EventSpec) (*models.Notification, bool, error) {
	if spec.IdempotencyKey == "" {
		return nil, false, errors.New("NotifyOnce requires an idempotency key")
	}
	record, user, err := n.build(ctx, userID, spec)
	if err != nil {
		return nil, false, err
	}
	created, err := n.store.CreateIfAbsent(ctx, record)
	if err != nil || !created {
		return nil, false, err
	}
	n.fanOut(ctx, record, user, spec)
	return record, true, nil
}

// Wait blocks until every delivery started so far has finished.
func (n *Notifier) Wait() {
	n.inflight.Wait()
}

func (n *Notifier) build(ctx context.Context, userID uint, spec EventSpec) (*models.Notification, *models.User, error) {
	var user *models.User
	if spec.Personalize != nil || spec.Email {
		u, err := n.users.FindByID(ctx, userID)
		if err != nil {
			return nil, nil, err
		}
		user = u
		if spec.Personalize != nil {
			spec.Personalize(&spec, user)
		}
	}

	record := &models.Notification{
		UserID:   userID,
		Type:     spec.Type,
		Title:    spec.Title,
		Message:  spec.Message,
		Metadata: spec.Metadata,
	}
	if spec.TTL > 0 {
		expiresAt := n.now().UTC().Add(spec.TTL)
		record.ExpiresAt = &expiresAt
	}
	if spec.IdempotencyKey != "" {
		key := spec.IdempotencyKey
		record.IdempotencyKey = &key
	}
	return record, user, nil
}

// fanOut runs every delivery in the background on a context that outlives the
// caller's request.
func (n *Notifier) fanOut(ctx context.Context, record *models.Notification, user *models.User, spec EventSpec) {
	evt := live.NewNotificationEvent(record, n.now())
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.deliveryTimeout)

	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		defer cancel()

		if !n.broadcast.Send(record.UserID, evt) {
			n.log.Sugar().Debugw("User is offline, skipped live event", "user_id", record.UserID, "notification_id", record.ID)
		}
		if spec.Push && n.push != nil {
			n.deliverPush(ctx, record, evt)
		}
		if spec.Email && n.mailer != nil && user != nil {
			n.deliverEmail(ctx, record, user)
		}
	}()
}

func (n *Notifier) deliverPush(ctx context.Context, record *models.Notification, evt live.Event) {
	report, err := n.push.Deliver(ctx, record.UserID, evt)
	if err != nil {
		n.log.Sugar().Errorw("Push delivery failed", "user_id", record.UserID, "notification_id", record.ID, "err", err)
		return
	}
	if len(report) > 0 {
		n.log.Sugar().Infow("Push delivered",
			"user_id", record.UserID, "notification_id", record.ID,
			"sent", report.Count(push.Sent), "failed", report.Count(push.Failed),
		)
	}
}

func (n *Notifier) deliverEmail(ctx context.Context, record *models.Notification, user *models.User) {
	ef := &email.NotificationEmailFormat{Name: user.Name, Title: record.Title, Message: record.Message}
	id, err := n.mailer.Send(ctx, ef.Subject(), ef.Body(), user.Email)
	if err != nil {
		n.log.Sugar().Errorw("Failed to email notification", "user_id", user.ID, "notification_id", record.ID, "err", err)
		return
	}
	n.log.Sugar().Infow("Emailed notification", "user_id", user.ID, "notification_id", record.ID, "message_id", id)
}

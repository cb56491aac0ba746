package lib

import (
	"context"
	"time"

	"github.com/fiffu/cardnotify/lib/live"
	"github.com/fiffu/cardnotify/lib/models"
	"github.com/fiffu/cardnotify/lib/notify"
	"github.com/fiffu/cardnotify/lib/scanner"
	"github.com/fiffu/cardnotify/lib/store"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Service is everything the HTTP layer and the CLI are allowed to do.
type Service struct {
	log           *zap.Logger
	notifications *store.Notifications
	registry      *store.PushRegistry
	subscriptions *store.Subscriptions
	notifier      *notify.Notifier
	scanner       *scanner.Scanner
	broadcast     *live.Broadcaster

	now func() time.Time
}

func NewService(
	lc fx.Lifecycle,
	log *zap.Logger,
	notifications *store.Notifications,
	registry *store.PushRegistry,
	subscriptions *store.Subscriptions,
	notifier *notify.Notifier,
	scanner *scanner.Scanner,
	broadcast *live.Broadcaster,
) *Service {
	svc := &Service{log, notifications, registry, subscriptions, notifier, scanner, broadcast, time.Now}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Waiting for in-flight deliveries")
			return svc.drain(ctx)
		},
	})
	return svc
}

func (svc *Service) drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		svc.notifier.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type ListOptions struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}

type NotificationList struct {
	Items       models.Notifications
	TotalUnread int64
}

func (svc *Service) ListNotifications(ctx context.Context, userID uint, opts ListOptions) (*NotificationList, error) {
	limit := opts.Limit
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	items, unread, err := svc.notifications.List(ctx, userID, store.ListFilter{
		Limit:      limit,
		Offset:     offset,
		UnreadOnly: opts.UnreadOnly,
	})
	if err != nil {
		return nil, err
	}
	return &NotificationList{items, unread}, nil
}

// owned fetches a notification, treating one that belongs to someone else as
// missing.
func (svc *Service) owned(ctx context.Context, userID, id uint) (*models.Notification, error) {
	n, err := svc.notifications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, errors.Wrapf(store.ErrNotFound, "notification %d", id)
	}
	return n, nil
}

func (svc *Service) MarkRead(ctx context.Context, userID, id uint) (*models.Notification, error) {
	if _, err := svc.owned(ctx, userID, id); err != nil {
		return nil, err
	}
	n, err := svc.notifications.MarkRead(ctx, id)
	if err != nil {
		return nil, err
	}
	svc.broadcast.Send(userID, live.ReadEvent(id, svc.now()))
	return n, nil
}

func (svc *Service) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	count, err := svc.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	svc.broadcast.Send(userID, live.AllReadEvent(svc.now()))
	return count, nil
}

func (svc *Service) Delete(ctx context.Context, userID, id uint) error {
	if _, err := svc.owned(ctx, userID, id); err != nil {
		return err
	}
	if err := svc.notifications.Delete(ctx, id); err != nil {
		return err
	}
	svc.broadcast.Send(userID, live.DeletedEvent(id, svc.now()))
	return nil
}

func (svc *Service) Notify(ctx context.Context, userID uint, spec notify.EventSpec) (*models.Notification, error) {
	return svc.notifier.Notify(ctx, userID, spec)
}

// RegisterPush stores a browser endpoint for userID. Registering an endpoint
// that is already known moves it to userID and refreshes its keys.
func (svc *Service) RegisterPush(ctx context.Context, userID uint, reg *models.PushRegistration) error {
	reg.UserID = userID
	if err := svc.registry.Add(ctx, reg); err != nil {
		return err
	}
	svc.log.Sugar().Infow("Registered push endpoint", "user_id", userID, "registration_id", reg.ID)
	return nil
}

func (svc *Service) UnregisterPush(ctx context.Context, userID uint, endpoint string) error {
	removed, err := svc.registry.RemoveEndpoint(ctx, userID, endpoint)
	if err != nil {
		return err
	}
	if removed == 0 {
		return errors.Wrap(store.ErrNotFound, "push endpoint")
	}
	return nil
}

func (svc *Service) RunDailyMaintenance(ctx context.Context) (*scanner.Report, error) {
	return svc.scanner.RunDailyMaintenance(ctx)
}

// NotifySubscriptionUpdate tells the owner of a subscription that its status
// changed.
func (svc *Service) NotifySubscriptionUpdate(ctx context.Context, subscriptionID uint, status string) (*models.Notification, error) {
	if status == "" {
		return nil, errors.Wrap(store.ErrInvalid, "subscription status is required")
	}
	sub, err := svc.subscriptions.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	plan, err := svc.subscriptions.FindPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	return svc.notifier.Notify(ctx, sub.UserID, notify.SubscriptionUpdate(sub.ID, plan.Name, status))
}

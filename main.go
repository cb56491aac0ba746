package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/fiffu/cardnotify/app"
	"github.com/fiffu/cardnotify/config"
	"github.com/fiffu/cardnotify/lib"
	"github.com/fiffu/cardnotify/lib/live"
	"github.com/fiffu/cardnotify/lib/notify"
	"github.com/fiffu/cardnotify/lib/push"
	"github.com/fiffu/cardnotify/lib/scanner"
	"github.com/fiffu/cardnotify/lib/store"
	"github.com/fiffu/cardnotify/senders"
	"github.com/jessevdk/go-flags"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type options struct {
	RunOnce bool `long:"run-once" description:"Run the daily maintenance pass once and exit"`
}

func main() {
	opts := options{}
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.RunOnce {
		os.Exit(runOnce())
	}

	fx.New(
		engine(),
		fx.Provide(scanner.NewScheduler),
		fx.Provide(app.NewAPI),

		fx.Invoke(func(*scanner.Scheduler) {}),
		fx.Invoke(func(*http.Server) {}),
	).Run()
}

// engine provides everything except the long-running surfaces.
func engine() fx.Option {
	return fx.Options(
		fx.Provide(config.NewConfig),
		fx.Provide(NewLogger),

		fx.Provide(app.NewDatabase),
		fx.Provide(app.NewTransport),

		fx.Provide(
			store.NewNotifications,
			store.NewPushRegistry,
			store.NewUsers,
			store.NewSubscriptions,
		),

		fx.Provide(live.NewHub),
		fx.Provide(func(hub *live.Hub) *live.Broadcaster { return live.NewBroadcaster(hub) }),

		fx.Provide(senders.NewWebPush),
		fx.Provide(senders.NewMailer),
		fx.Provide(func(log *zap.Logger, registry *store.PushRegistry, client *senders.WebPush) *push.Dispatcher {
			return push.NewDispatcher(log, registry, client)
		}),

		fx.Provide(newNotifier),
		fx.Provide(func(cfg *config.Config, log *zap.Logger, n *store.Notifications, s *store.Subscriptions, notifier *notify.Notifier) *scanner.Scanner {
			return scanner.New(log, n, s, notifier, cfg.Location())
		}),
		fx.Provide(lib.NewService),
	)
}

func newNotifier(
	log *zap.Logger,
	notifications *store.Notifications,
	users *store.Users,
	broadcast *live.Broadcaster,
	dispatcher *push.Dispatcher,
	mailer senders.Mailer,
) *notify.Notifier {
	return notify.New(log, notify.Deps{
		Store:       notifications,
		Users:       users,
		Broadcaster: broadcast,
		Push:        dispatcher,
		Mailer:      mailer,
	})
}

func runOnce() int {
	var (
		svc *lib.Service
		log *zap.Logger
	)
	fxApp := fx.New(engine(), fx.Populate(&svc, &log), fx.NopLogger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := fxApp.Start(ctx); err != nil {
		return 1
	}
	defer fxApp.Stop(context.Background())

	report, err := svc.RunDailyMaintenance(ctx)
	if err != nil {
		log.Sugar().Errorw("Maintenance run failed", "err", err)
		return 1
	}
	log.Sugar().Infow("Maintenance run finished", "report", report)
	return 0
}

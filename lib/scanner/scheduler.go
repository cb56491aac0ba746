package scanner

import (
	"context"
	"time"

	"github.com/fiffu/cardnotify/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler triggers RunDailyMaintenance on a cron schedule. Runs never
// overlap: a tick that arrives while the previous run is busy is skipped.
type Scheduler struct {
	log     *zap.Logger
	scanner *Scanner
	cron    *cron.Cron
	timeout time.Duration
}

func NewScheduler(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, scanner *Scanner) (*Scheduler, error) {
	timeout := time.Duration(cfg.Maintenance.TimeoutSecs) * time.Second
	s, err := newScheduler(log, scanner, cfg.Maintenance.Schedule, cfg.Location(), timeout)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Trying to stop maintenance scheduler")
			return s.Stop(ctx)
		},
	})
	return s, nil
}

func newScheduler(log *zap.Logger, scanner *Scanner, schedule string, loc *time.Location, timeout time.Duration) (*Scheduler, error) {
	cronLog := cron.PrintfLogger(zap.NewStdLog(log.Named("cron")))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	s := &Scheduler{log, scanner, c, timeout}
	if _, err := c.AddFunc(schedule, s.tick); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, entry := range s.cron.Entries() {
		s.log.Sugar().Infow("Maintenance scheduler started", "next_run", entry.Next)
	}
}

// Stop waits for a running maintenance pass to finish, or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Sugar().Info("Maintenance scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.scanner.RunDailyMaintenance(ctx); err != nil {
		s.log.Sugar().Errorw("Daily maintenance failed", "err", err)
	}
}

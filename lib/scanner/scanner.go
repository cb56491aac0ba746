// Package scanner runs the daily maintenance pass: purging expired
// notifications and reminding users whose subscriptions are about to end.
package scanner

import (
	"context"
	"time"

	"github.com/fiffu/cardnotify/lib/models"
	"github.com/fiffu/cardnotify/lib/notify"
	"go.uber.org/zap"
)

// ReminderOffsets are the days before a subscription ends on which a reminder
// is due, in the order they are processed.
var ReminderOffsets = []int{1, 3, 5}

type NotificationStore interface {
	FindExisting(ctx context.Context, userID uint, typ string, filter map[string]any) (*models.Notification, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type SubscriptionStore interface {
	ActiveEndingBetween(ctx context.Context, start, end time.Time) (models.Subscriptions, error)
}

type Notifier interface {
	NotifyOnce(ctx context.Context, userID uint, spec notify.EventSpec) (*models.Notification, bool, error)
}

type Scanner struct {
	log           *zap.Logger
	notifications NotificationStore
	subscriptions SubscriptionStore
	notifier      Notifier

	loc *time.Location
	now func() time.Time
}

func New(log *zap.Logger, notifications NotificationStore, subscriptions SubscriptionStore, notifier Notifier, loc *time.Location) *Scanner {
	if loc == nil {
		loc = time.UTC
	}
	return &Scanner{log, notifications, subscriptions, notifier, loc, time.Now}
}

// WithClock replaces the scanner's clock, for tests and backfills.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

type Report struct {
	Purged  int64 `json:"purged"`
	Matched int   `json:"matched"`
	Created int   `json:"created"`
	Skipped int   `json:"skipped"`
	Errored int   `json:"errored"`
}

func (r *Report) Add(other *Report) {
	r.Matched += other.Matched
	r.Created += other.Created
	r.Skipped += other.Skipped
	r.Errored += other.Errored
}

// RunDailyMaintenance purges expired notifications, then sends any due
// subscription reminders. Only a failed purge is returned as an error;
// reminder failures are logged and counted in the report.
func (s *Scanner) RunDailyMaintenance(ctx context.Context) (*Report, error) {
	started := time.Now()

	report := &Report{}
	purged, err := s.PurgeExpired(ctx)
	report.Purged = purged

	report.Add(s.RemindExpiringSubscriptions(ctx))

	args := []any{"purged", report.Purged, "matched", report.Matched, "created", report.Created}
	if report.Skipped != 0 {
		args = append(args, "skipped", report.Skipped)
	}
	if report.Errored != 0 {
		args = append(args, "errored", report.Errored)
	}
	elapsed := time.Since(started)
	args = append(args, "elapsed_msecs", int(elapsed.Milliseconds()))
	s.log.Sugar().Infow("Daily maintenance completed", args...)

	return report, err
}

func (s *Scanner) PurgeExpired(ctx context.Context) (int64, error) {
	purged, err := s.notifications.DeleteExpired(ctx, s.now())
	if err != nil {
		s.log.Sugar().Errorw("Failed to purge expired notifications", "err", err)
		return purged, err
	}
	if purged > 0 {
		s.log.Sugar().Infof("Purged %d expired notifications", purged)
	}
	return purged, nil
}

// RemindExpiringSubscriptions walks each reminder offset in order. Within an
// offset subscriptions are handled one at a time, and one failing does not
// stop the rest.
func (s *Scanner) RemindExpiringSubscriptions(ctx context.Context) *Report {
	now := s.now()
	report := &Report{}

	for _, daysLeft := range ReminderOffsets {
		start, end := DayBucket(now, daysLeft, s.loc)

		subs, err := s.subscriptions.ActiveEndingBetween(ctx, start, end)
		if err != nil {
			s.log.Sugar().Errorw("Failed to find expiring subscriptions", "days_left", daysLeft, "err", err)
			report.Errored++
			continue
		}
		report.Matched += len(subs)

		for i := range subs {
			sub := &subs[i]
			created, err := s.remind(ctx, sub, daysLeft)
			switch {
			case err != nil:
				report.Errored++
				s.log.Sugar().Errorw("Failed to send expiration reminder",
					"subscription_id", sub.ID, "user_id", sub.UserID, "days_left", daysLeft, "err", err)
			case created:
				report.Created++
			default:
				report.Skipped++
			}
		}
	}
	return report
}

func (s *Scanner) remind(ctx context.Context, sub *models.Subscription, daysLeft int) (bool, error) {
	existing, err := s.notifications.FindExisting(ctx, sub.UserID, models.TypeSubscriptionExpiration, map[string]any{
		models.MetaSubscriptionID: sub.ID,
		models.MetaDaysLeft:       daysLeft,
	})
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	spec := notify.SubscriptionExpiration(sub.UserID, sub.ID, sub.Plan.Name, daysLeft)
	_, created, err := s.notifier.NotifyOnce(ctx, sub.UserID, spec)
	return created, err
}

// DayBucket returns the first and last instant of the calendar day that is
// days after now, in loc.
func DayBucket(now time.Time, days int, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day()+days, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}

package notify

import (
	"fmt"
	"html"
	"time"

	"github.com/fiffu/cardnotify/lib/models"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/datatypes"
)

const (
	day = 24 * time.Hour

	ViewTTL     = 7 * day
	AccountTTL  = 30 * day
	SecurityTTL = 90 * day
)

// EventSpec describes one notification to raise.
type EventSpec struct {
	Type     string
	Title    string
	Message  string
	Metadata datatypes.JSONMap
	TTL      time.Duration // zero means the notification never expires

	Push  bool // also deliver to the user's browser push endpoints
	Email bool // also email the user, when a mailer is configured

	// Set on events that must be raised at most once; see models.ReminderKey.
	IdempotencyKey string

	// Personalize fills in text that depends on the recipient. When set, the
	// user must exist.
	Personalize func(spec *EventSpec, user *models.User)
}

var text = bluemonday.StrictPolicy()

// clean strips markup from values that originate outside this engine. The
// result is plain text; whoever renders it as HTML escapes it.
func clean(s string) string {
	return html.UnescapeString(text.Sanitize(s))
}

func meta(event string, kv ...any) datatypes.JSONMap {
	m := datatypes.JSONMap{models.MetaEvent: event}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

func Welcome() EventSpec {
	return EventSpec{
		Type:     models.TypeWelcome,
		Title:    "Welcome",
		Message:  "Your account is ready. Create your first card to get started.",
		Metadata: meta("welcome"),
		TTL:      AccountTTL,
		Personalize: func(spec *EventSpec, user *models.User) {
			if user.Name != "" {
				spec.Title = fmt.Sprintf("Welcome, %s", clean(user.Name))
			}
		},
	}
}

func PasswordReset() EventSpec {
	return EventSpec{
		Type:     models.TypePasswordReset,
		Title:    "Password Reset",
		Message:  "Your password was reset.",
		Metadata: meta("password_reset"),
		TTL:      SecurityTTL,
		Push:     true,
		Personalize: func(spec *EventSpec, user *models.User) {
			spec.Message = fmt.Sprintf("The password for %s was reset. If this was not you, contact support immediately.", user.Email)
		},
	}
}

// SecurityUpdate reports a change to the account's security settings, such as
// "email changed" or "new login".
func SecurityUpdate(change string) EventSpec {
	change = clean(change)
	return EventSpec{
		Type:     models.TypeSecurityUpdate,
		Title:    "Security Update",
		Metadata: meta("security_update", "change", change),
		TTL:      SecurityTTL,
		Push:     true,
		Email:    true,
		Personalize: func(spec *EventSpec, user *models.User) {
			spec.Message = fmt.Sprintf("Security update on %s: %s.", user.Email, change)
		},
	}
}

func TwoFactorChanged(enabled bool) EventSpec {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return EventSpec{
		Type:     models.TypeTwoFactor,
		Title:    "Two-Factor Authentication " + state,
		Metadata: meta("two_factor", "enabled", enabled),
		TTL:      SecurityTTL,
		Push:     true,
		Email:    true,
		Personalize: func(spec *EventSpec, user *models.User) {
			spec.Message = fmt.Sprintf("Two-factor authentication was %s for %s.", state, user.Email)
		},
	}
}

func CardView(cardID uint, cardName, viewer string) EventSpec {
	if viewer == "" {
		viewer = "Someone"
	}
	return EventSpec{
		Type:     models.TypeVCardView,
		Title:    "Card Viewed",
		Message:  fmt.Sprintf("%s viewed your card %s.", clean(viewer), clean(cardName)),
		Metadata: meta("vcard_view", "card_id", cardID, "viewer", clean(viewer)),
		TTL:      ViewTTL,
		Push:     true,
	}
}

func SubscriptionUpdate(subscriptionID uint, planName, status string) EventSpec {
	return EventSpec{
		Type:     models.TypeSubscriptionUpdate,
		Title:    "Subscription Updated",
		Message:  fmt.Sprintf("Your %s subscription is now %s.", clean(planName), status),
		Metadata: meta("subscription_update", models.MetaSubscriptionID, subscriptionID, "plan", clean(planName), "status", status),
		TTL:      AccountTTL,
	}
}

func SubscriptionExpiration(userID, subscriptionID uint, planName string, daysLeft int) EventSpec {
	return EventSpec{
		Type:     models.TypeSubscriptionExpiration,
		Title:    "Subscription Expiration Reminder",
		Message:  expiryMessage(clean(planName), daysLeft),
		Metadata: meta(models.TypeSubscriptionExpiration, models.MetaSubscriptionID, subscriptionID, models.MetaDaysLeft, daysLeft),
		TTL:      ViewTTL,

		IdempotencyKey: models.ReminderKey(userID, subscriptionID, daysLeft),
	}
}

// An unnamed plan still gets its reminder.
func expiryMessage(plan string, daysLeft int) string {
	if plan == "" {
		return fmt.Sprintf("Your subscription expires in %d day(s).", daysLeft)
	}
	return fmt.Sprintf("Your %s subscription expires in %d day(s).", plan, daysLeft)
}

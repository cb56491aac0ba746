package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Env            string `env:"ENVIRONMENT"`
	ServerPort     int    `env:"PORT" envDefault:"8080"`
	DatabasePath   string `env:"DATABASE_PATH" envDefault:"cardnotify.sqlite"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`

	Auth struct {
		JWTSecret string `env:"JWT_SECRET"`
	}
	Mailgun struct {
		Domain      string `env:"MAILGUN_DOMAIN"`
		APIKey      string `env:"MAILGUN_API_KEY"`
		SenderFrom  string `env:"MAILGUN_SENDER_FROM" envDefault:"notifications@localhost"`
		TimeoutSecs int    `env:"MAILGUN_TIMEOUT_SECS" envDefault:"10"`
	}
	WebPush struct {
		Subscriber      string `env:"WEBPUSH_SUBSCRIBER" envDefault:"mailto:admin@localhost"`
		VAPIDPublicKey  string `env:"WEBPUSH_VAPID_PUBLIC_KEY"`
		VAPIDPrivateKey string `env:"WEBPUSH_VAPID_PRIVATE_KEY"`
		TTLSecs         int    `env:"WEBPUSH_TTL_SECS" envDefault:"86400"`
		TimeoutSecs     int    `env:"WEBPUSH_TIMEOUT_SECS" envDefault:"10"`
	}
	Maintenance struct {
		Schedule    string `env:"MAINTENANCE_SCHEDULE" envDefault:"0 0 * * *"` // cron, minute resolution
		Timezone    string `env:"MAINTENANCE_TIMEZONE" envDefault:"UTC"`
		TimeoutSecs int    `env:"MAINTENANCE_TIMEOUT_SECS" envDefault:"600"`
	}

	log   *zap.Logger
	creds map[string]string
	loc   *time.Location
}

func NewConfig(lc fx.Lifecycle, log *zap.Logger) *Config {
	cfg := &Config{log: log}
	if err := env.Parse(cfg); err != nil {
		cfg.log.Sugar().Panic(err)
	}

	creds, err := cfg.parseCreds()
	if err != nil {
		if cfg.Env != "production" {
			cfg.log.Sugar().Infof("%s (credentials will be set to default outside production)", err)
			creds = map[string]string{"admin": "password"}
		} else {
			cfg.log.Sugar().Panic(err)
		}
	}
	cfg.creds = creds

	loc, err := time.LoadLocation(cfg.Maintenance.Timezone)
	if err != nil {
		cfg.log.Sugar().Panic(err)
	}
	cfg.loc = loc

	if cfg.Auth.JWTSecret == "" {
		if cfg.Env == "production" {
			cfg.log.Sugar().Panic("JWT_SECRET envvar must be populated")
		}
		cfg.Auth.JWTSecret = "development-secret"
	}

	return cfg
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

// Location is the time zone whose calendar days bucket subscription end dates.
func (cfg *Config) Location() *time.Location {
	if cfg.loc == nil {
		return time.UTC
	}
	return cfg.loc
}

func (cfg *Config) MailgunEnabled() bool {
	return cfg.Mailgun.Domain != "" && cfg.Mailgun.APIKey != ""
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if cfg.BasicAuthCreds == "" {
		return nil, errors.New("BASIC_AUTH_CREDS envvar must be populated")
	}

	creds := strings.Split(cfg.BasicAuthCreds, ",")
	if len(creds) == 0 {
		return nil, errors.New("BASIC_AUTH_CREDS envvar should be filled with comma-separated values -- user1:pass1,user2:pass2")
	}

	result := make(map[string]string)
	for _, cred := range creds {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := userPass[0], userPass[1]
		result[strings.Trim(user, " ")] = strings.Trim(pass, " ")
	}

	return result, nil
}

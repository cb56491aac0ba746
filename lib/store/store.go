// Package store persists notifications and push registrations, and reads the
// user and subscription records owned by the rest of the platform.
package store

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid input")
)

// notFound maps gorm's missing-row error onto ErrNotFound and wraps anything
// else with the failing operation.
func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(ErrNotFound, op)
	}
	return errors.Wrap(err, op)
}

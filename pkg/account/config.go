package account

import (
	"time"

	"github.com/rhuss/digsite/pkg/api"
)

// DefaultResetTokenTTL is how long a reset token stays valid.
const DefaultResetTokenTTL = time.Hour

// Config holds configuration for the account service.
type Config struct {
	// Validation sets the password and field limits. The zero value
	// means api.DefaultValidationConfig().
	Validation api.ValidationConfig

	// ResetTokenTTL is the lifetime of a password reset token. Zero or
	// negative means DefaultResetTokenTTL.
	ResetTokenTTL time.Duration

	// ResetLinkBase, when set, is the URL the reset token is appended to
	// in notifications, for example "https://digsite.example/reset".
	ResetLinkBase string
}

func (c Config) validation() api.ValidationConfig {
	if c.Validation == (api.ValidationConfig{}) {
		return api.DefaultValidationConfig()
	}
	return c.Validation
}

func (c Config) resetTTL() time.Duration {
	if c.ResetTokenTTL <= 0 {
		return DefaultResetTokenTTL
	}
	return c.ResetTokenTTL
}

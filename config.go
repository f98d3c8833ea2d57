package identity

import "time"

// Config carries every policy value and secret this core needs. It is
// constructed explicitly by the caller and passed in; there is no implicit
// global state.
type Config struct {
	// SigningKey signs session credentials. Required.
	SigningKey []byte
	// Issuer and Audience are embedded in session credentials and enforced
	// on recovery when set.
	Issuer   string
	Audience []string

	// SessionTTL bounds how long an issued session credential is valid.
	SessionTTL time.Duration

	// VerificationTokenTTL and ResetTokenTTL bound the verification and
	// password-reset token pairings.
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration

	// VerificationResendCooldown and ResetResendCooldown reject resend
	// requests arriving too soon after the previous send.
	VerificationResendCooldown time.Duration
	ResetResendCooldown        time.Duration

	// BcryptCost is the work factor for password hashes.
	BcryptCost int

	// MaxLoginAttempts and LoginAttemptWindow throttle local logins.
	MaxLoginAttempts   int
	LoginAttemptWindow time.Duration
}

const (
	defaultSessionTTL           = 24 * time.Hour
	defaultVerificationTokenTTL = 24 * time.Hour
	defaultResetTokenTTL        = time.Hour
	defaultResendCooldown       = time.Minute
	defaultBcryptCost           = 14
	defaultMaxLoginAttempts     = 5
	defaultLoginAttemptWindow   = 24 * time.Hour
)

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.VerificationTokenTTL <= 0 {
		c.VerificationTokenTTL = defaultVerificationTokenTTL
	}
	if c.ResetTokenTTL <= 0 {
		c.ResetTokenTTL = defaultResetTokenTTL
	}
	if c.VerificationResendCooldown <= 0 {
		c.VerificationResendCooldown = defaultResendCooldown
	}
	if c.ResetResendCooldown <= 0 {
		c.ResetResendCooldown = defaultResendCooldown
	}
	if c.BcryptCost <= 0 {
		c.BcryptCost = defaultBcryptCost
	}
	if c.MaxLoginAttempts <= 0 {
		c.MaxLoginAttempts = defaultMaxLoginAttempts
	}
	if c.LoginAttemptWindow <= 0 {
		c.LoginAttemptWindow = defaultLoginAttemptWindow
	}
	return c
}

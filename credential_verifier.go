package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// AccountTracker is the slice of the account store the verifier needs.
type AccountTracker interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	TrackAttemptedLogin(ctx context.Context, account *Account) error
	TrackSuccessfulLogin(ctx context.Context, account *Account) error
}

// CredentialVerifier authenticates the local password path. External
// sign-ins never reach it; the provider assertion replaces the password
// check entirely.
type CredentialVerifier struct {
	store  AccountTracker
	cfg    Config
	logger Logger
	now    func() time.Time
}

// NewCredentialVerifier builds a verifier over the account store.
func NewCredentialVerifier(store AccountTracker, cfg Config) *CredentialVerifier {
	return &CredentialVerifier{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: defLogger{},
		now:    time.Now,
	}
}

// WithLogger overrides the verifier's logger.
func (v *CredentialVerifier) WithLogger(l Logger) *CredentialVerifier {
	if l != nil {
		v.logger = l
	}
	return v
}

// WithClock injects a clock, used by tests to pin the attempt window.
func (v *CredentialVerifier) WithClock(clock func() time.Time) *CredentialVerifier {
	if clock != nil {
		v.now = clock
	}
	return v
}

// VerifyLocal finds the account by email and compares the presented
// password. Unknown address, wrong password, and an external-only account
// all collapse to ErrInvalidCredentials so callers cannot enumerate
// accounts. Repeated failures inside the attempt window are throttled.
func (v *CredentialVerifier) VerifyLocal(ctx context.Context, email, password string) (*Account, error) {
	account, err := v.store.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account during verification")
	}

	// An external account has no password hash to compare; the local path
	// fails the same way a wrong password does.
	if account.IsExternal() || account.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}

	// Reset on the record itself: a failure after the window must be
	// tracked as attempt 1, not stale+1.
	if account.LoginAttemptAt != nil {
		if v.cfg.LoginAttemptWindow > 0 && v.now().Sub(*account.LoginAttemptAt) > v.cfg.LoginAttemptWindow {
			account.LoginAttempts = 0
		}
	}

	if account.LoginAttempts >= v.cfg.MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		if err2 := v.store.TrackAttemptedLogin(ctx, account); err2 != nil {
			return nil, goerrors.Wrap(err2, goerrors.CategoryInternal, "failed to track login attempt")
		}
		return nil, ErrInvalidCredentials
	}

	if err := v.store.TrackSuccessfulLogin(ctx, account); err != nil {
		v.logger.Error("failed to track successful login", "error", err)
	}

	return account, nil
}

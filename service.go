package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Service is the operation surface the route layer consumes. Every public
// method returns a typed outcome from the error taxonomy; nothing escapes
// as an unhandled fault.
type Service struct {
	repo               RepositoryManager
	cfg                Config
	verifier           *CredentialVerifier
	sessions           *SessionService
	ledger             *Ledger
	verificationTokens *TokenIssuer
	resetTokens        *TokenIssuer
	mailer             Mailer
	exchanger          IdentityExchanger
	logger             Logger
	now                func() time.Time
}

// NewService wires the identity core. Mail delivery and the external
// identity provider are optional collaborators; operations that need an
// absent collaborator fail with ErrCollaboratorUnavailable.
func NewService(repo RepositoryManager, cfg Config) *Service {
	cfg = cfg.withDefaults()

	s := &Service{
		repo:               repo,
		cfg:                cfg,
		verifier:           NewCredentialVerifier(repo.Accounts(), cfg),
		sessions:           NewSessionService(cfg),
		ledger:             NewLedger(repo),
		verificationTokens: NewTokenIssuer(cfg.VerificationTokenTTL),
		resetTokens:        NewTokenIssuer(cfg.ResetTokenTTL),
		logger:             defLogger{},
		now:                time.Now,
	}

	return s
}

// WithMailer configures the mail-delivery collaborator.
func (s *Service) WithMailer(m Mailer) *Service {
	s.mailer = m
	return s
}

// WithIdentityExchanger configures the external identity provider.
func (s *Service) WithIdentityExchanger(e IdentityExchanger) *Service {
	s.exchanger = e
	return s
}

// WithLogger overrides the service logger.
func (s *Service) WithLogger(l Logger) *Service {
	if l != nil {
		s.logger = l
		s.verifier.WithLogger(l)
		s.rebuild()
	}
	return s
}

// WithClock injects a clock, used by tests to pin cooldowns and expiries.
func (s *Service) WithClock(clock func() time.Time) *Service {
	if clock != nil {
		s.now = clock
		s.verifier.WithClock(clock)
		s.rebuild()
	}
	return s
}

// rebuild reconstructs the clock- and logger-bearing collaborators from the
// current builder state, so WithLogger and WithClock compose in any order.
func (s *Service) rebuild() {
	s.verificationTokens = NewTokenIssuer(s.cfg.VerificationTokenTTL, WithTokenClock(s.now))
	s.resetTokens = NewTokenIssuer(s.cfg.ResetTokenTTL, WithTokenClock(s.now))
	s.sessions = NewSessionService(s.cfg, WithSessionClock(s.now), WithSessionLogger(s.logger))
	s.ledger = NewLedger(s.repo, WithLedgerClock(s.now), WithLedgerLogger(s.logger))
}

// Sessions exposes the session issuer so the route layer can recover
// identities from presented credentials.
func (s *Service) Sessions() *SessionService {
	return s.sessions
}

// Ledger exposes the role & audit ledger.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// RegisterMessage is the local registration payload.
type RegisterMessage struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// Validate implements the payload contract.
func (m RegisterMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&m.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(&m.FullName, validation.Length(0, 200)),
	)
}

// Register creates a local account in the unverified state, issues a
// verification token in the same transaction, and sends the verification
// mail after commit. A failed send is logged and degrades to "request
// resend": the persisted token stays valid.
func (s *Service) Register(ctx context.Context, msg RegisterMessage) (*Account, error) {
	if err := msg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	hash, err := HashPassword(msg.Password, s.cfg.BcryptCost)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	account := &Account{
		Email:        NormalizeEmail(msg.Email),
		FullName:     msg.FullName,
		AuthProvider: ProviderLocal,
		Role:         RoleCustomer,
		PasswordHash: hash,
	}

	var issued IssuedToken

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := s.repo.Accounts().CreateTx(ctx, tx, account)
		if err != nil {
			if goerrors.Is(err, ErrDuplicateIdentity) {
				return ErrEmailTaken.WithMetadata(map[string]any{"email": account.Email})
			}
			return err
		}

		issued, err = s.verificationTokens.Issue()
		if err != nil {
			return err
		}

		updated, err := s.repo.Accounts().SetVerificationTokenTx(ctx, tx, created.ID, issued, s.now())
		if err != nil {
			return err
		}

		if _, err := s.ledger.RecordAccountCreatedTx(ctx, tx, updated, SelfActor(updated.ID.String())); err != nil {
			return err
		}

		account = updated
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "registration transaction failed")
	}

	if err := s.sendMail(ctx, account.Email, MailVerifyEmail, issued); err != nil {
		s.logger.Warn("verification mail not sent after registration", "email", account.Email, "error", err)
	}

	return account, nil
}

// LoginMessage is the local login payload.
type LoginMessage struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate implements the payload contract.
func (m LoginMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Password, validation.Required),
	)
}

// LoginResult carries the session credential minted for an authenticated
// account.
type LoginResult struct {
	Credential string
	Account    *Account
}

// Login authenticates the local password path and mints a session
// credential. All authentication failures surface as ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, msg LoginMessage) (*LoginResult, error) {
	if err := msg.Validate(); err != nil {
		return nil, ErrInvalidCredentials
	}

	account, err := s.verifier.VerifyLocal(ctx, msg.Email, msg.Password)
	if err != nil {
		return nil, err
	}

	credential, err := s.sessions.Issue(account)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Credential: credential, Account: account}, nil
}

// RequestVerification issues a fresh verification token for an unverified
// account and sends the mail. The previous token, if any, is overwritten:
// only one live pairing per purpose exists at a time.
func (s *Service) RequestVerification(ctx context.Context, email string) error {
	var issued IssuedToken
	var address string

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := s.repo.Accounts().GetByEmailTx(ctx, tx, email)
		if err != nil {
			if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
				return ErrNotFound.WithMetadata(map[string]any{"email": NormalizeEmail(email)})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for verification request")
		}

		if account.EmailVerified {
			return ErrNoChange
		}

		if WithinCooldown(account.LastVerificationEmailSent, s.cfg.VerificationResendCooldown, s.now()) {
			return ErrCooldownActive
		}

		issued, err = s.verificationTokens.Issue()
		if err != nil {
			return err
		}

		if _, err := s.repo.Accounts().SetVerificationTokenTx(ctx, tx, account.ID, issued, s.now()); err != nil {
			return err
		}

		address = account.Email
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "verification request failed")
	}

	return s.sendMail(ctx, address, MailVerifyEmail, issued)
}

// ConfirmVerificationMessage carries the link contents back to the core.
type ConfirmVerificationMessage struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// Validate implements the payload contract.
func (m ConfirmVerificationMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Token, validation.Required),
	)
}

// ConfirmVerification validates the presented token and marks the address
// verified, clearing the pairing in the same update so the token cannot be
// replayed. Unknown address, mismatch, and expiry are indistinguishable.
func (s *Service) ConfirmVerification(ctx context.Context, msg ConfirmVerificationMessage) (*Account, error) {
	if err := msg.Validate(); err != nil {
		return nil, ErrTokenInvalid
	}

	var account *Account

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := s.repo.Accounts().GetByEmailTx(ctx, tx, msg.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
				return ErrTokenInvalid
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for verification")
		}

		if err := s.verificationTokens.Validate(found.VerificationToken, found.VerificationTokenExpiry, msg.Token); err != nil {
			return err
		}

		account, err = s.repo.Accounts().ConsumeVerificationTokenTx(ctx, tx, found.ID, msg.Token)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "verification confirmation failed")
	}

	return account, nil
}

// RequestPasswordReset issues a reset token and sends the reset mail. An
// unknown or external-only address succeeds silently so the operation does
// not reveal which addresses have local accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	var issued IssuedToken
	var address string

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := s.repo.Accounts().GetByEmailTx(ctx, tx, email)
		if err != nil {
			if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
		}

		if account.IsExternal() {
			return nil
		}

		if WithinCooldown(account.LastResetEmailSent, s.cfg.ResetResendCooldown, s.now()) {
			return ErrCooldownActive
		}

		issued, err = s.resetTokens.Issue()
		if err != nil {
			return err
		}

		if _, err := s.repo.Accounts().SetResetTokenTx(ctx, tx, account.ID, issued, s.now()); err != nil {
			return err
		}

		address = account.Email
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset request failed")
	}

	if address == "" {
		return nil
	}

	return s.sendMail(ctx, address, MailResetPassword, issued)
}

// ConfirmPasswordResetMessage carries the reset link contents plus the new
// password.
type ConfirmPasswordResetMessage struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// Validate implements the payload contract.
func (m ConfirmPasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Token, validation.Required),
		validation.Field(&m.NewPassword, validation.Required, validation.Length(10, 100)),
	)
}

// ConfirmPasswordReset validates the presented token and stores the new
// password hash, clearing the pairing in the same update. Completing a reset
// also proves mailbox ownership, so the address is marked verified.
func (s *Service) ConfirmPasswordReset(ctx context.Context, msg ConfirmPasswordResetMessage) (*Account, error) {
	if err := msg.Validate(); err != nil {
		if verr, ok := err.(validation.Errors); ok {
			if _, bad := verr["new_password"]; bad {
				return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
			}
		}
		return nil, ErrTokenInvalid
	}

	hash, err := HashPassword(msg.NewPassword, s.cfg.BcryptCost)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
	}

	var account *Account

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := s.repo.Accounts().GetByEmailTx(ctx, tx, msg.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
				return ErrTokenInvalid
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
		}

		if err := s.resetTokens.Validate(found.ResetToken, found.ResetTokenExpiry, msg.Token); err != nil {
			return err
		}

		account, err = s.repo.Accounts().ConsumeResetTokenTx(ctx, tx, found.ID, msg.Token, hash)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "password reset confirmation failed")
	}

	return account, nil
}

// ExternalSignInResult carries the outcome of an external sign-in.
type ExternalSignInResult struct {
	Credential string
	Account    *Account
	NewAccount bool
}

// SignInWithExternalIdentity exchanges the provider artifact for a verified
// identity, then signs in or provisions an account. An email that already
// belongs to a local account is rejected with ErrAccountConflict: linking
// without re-authentication would hand the account to whoever controls the
// provider identity.
func (s *Service) SignInWithExternalIdentity(ctx context.Context, authCode string) (*ExternalSignInResult, error) {
	if s.exchanger == nil {
		return nil, ErrCollaboratorUnavailable.WithMetadata(map[string]any{"collaborator": "identity_provider"})
	}

	assertion, err := s.exchanger.Exchange(ctx, authCode)
	if err != nil {
		return nil, ErrCollaboratorUnavailable.WithMetadata(map[string]any{
			"collaborator": "identity_provider",
			"cause":        err.Error(),
		})
	}

	if assertion == nil || assertion.ExternalID == "" || assertion.Email == "" {
		return nil, ErrInvalidCredentials
	}

	result := &ExternalSignInResult{}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		known, err := s.repo.Accounts().GetByExternalIDTx(ctx, tx, assertion.ExternalID)
		if err == nil {
			result.Account = known
			return nil
		}
		if !repository.IsRecordNotFound(err) && !goerrors.IsNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up external identity")
		}

		email := NormalizeEmail(assertion.Email)

		existing, err := s.repo.Accounts().GetByEmailTx(ctx, tx, email)
		if err == nil {
			if existing.IsLocal() {
				return ErrAccountConflict.WithMetadata(map[string]any{"email": email})
			}
			// Same address, different provider subject: a provider identity
			// collision, not a linking candidate.
			return ErrDuplicateIdentity.WithMetadata(map[string]any{"email": email})
		}
		if !repository.IsRecordNotFound(err) && !goerrors.IsNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account by email")
		}

		account := &Account{
			Email:        email,
			FullName:     assertion.DisplayName,
			AvatarURL:    assertion.AvatarURL,
			AuthProvider: ProviderExternal,
			ExternalID:   assertion.ExternalID,
			Role:         RoleCustomer,
			// The provider already asserted ownership of the address.
			EmailVerified: true,
		}

		created, err := s.repo.Accounts().CreateTx(ctx, tx, account)
		if err != nil {
			return err
		}

		if _, err := s.ledger.RecordAccountCreatedTx(ctx, tx, created, SelfActor(created.ID.String())); err != nil {
			return err
		}

		result.Account = created
		result.NewAccount = true
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "external sign-in failed")
	}

	credential, err := s.sessions.Issue(result.Account)
	if err != nil {
		return nil, err
	}

	result.Credential = credential
	return result, nil
}

// ChangeRole delegates to the ledger. The policy layer must have authorized
// the actor already.
func (s *Service) ChangeRole(ctx context.Context, accountID uuid.UUID, newRole Role, actor ActorRef) (*RoleChange, error) {
	return s.ledger.ChangeRole(ctx, accountID, newRole, actor)
}

// History returns the account's audit trail in append order.
func (s *Service) History(ctx context.Context, accountID uuid.UUID) ([]*AuditEntry, error) {
	return s.ledger.History(ctx, accountID)
}

func (s *Service) sendMail(ctx context.Context, to string, template MailTemplate, token IssuedToken) error {
	if s.mailer == nil {
		return ErrCollaboratorUnavailable.WithMetadata(map[string]any{"collaborator": "mailer"})
	}

	err := s.mailer.Send(ctx, to, template, map[string]any{
		"email":      to,
		"token":      token.Value,
		"expires_at": token.ExpiresAt,
	})
	if err != nil {
		return ErrCollaboratorUnavailable.WithMetadata(map[string]any{
			"collaborator": "mailer",
			"cause":        err.Error(),
		})
	}

	return nil
}

package identity

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes give route handlers and clients a stable identifier for each
// outcome, independent of the human-readable message.
const (
	TextCodeEmailTaken         = "EMAIL_TAKEN"
	TextCodeDuplicateIdentity  = "DUPLICATE_IDENTITY"
	TextCodeNotFound           = "NOT_FOUND"
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeTokenInvalid       = "TOKEN_INVALID"
	TextCodeCooldownActive     = "COOLDOWN_ACTIVE"
	TextCodeAccountConflict    = "ACCOUNT_CONFLICT"
	TextCodeUnauthorized       = "UNAUTHORIZED"
	TextCodeCollaboratorDown   = "COLLABORATOR_UNAVAILABLE"
	TextCodeNoChange           = "NO_CHANGE"
	TextCodeTooManyAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeInvalidRole        = "INVALID_ROLE"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeSessionDecodeError = "SESSION_DECODE_ERROR"
	TextCodeSessionExpired     = "SESSION_EXPIRED"
)

// ErrEmailTaken is returned by registration when the address already has an
// account.
var ErrEmailTaken = goerrors.New("email address is already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrDuplicateIdentity is raised by the account store when a create collides
// with an existing email or external subject id.
var ErrDuplicateIdentity = goerrors.New("an account with this identity already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateIdentity).
	WithCode(goerrors.CodeConflict)

// ErrNotFound is returned when the referenced account does not exist.
var ErrNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidCredentials covers every local-login failure: unknown address,
// wrong password, or an external-only account with no password to compare.
// Callers must not be able to tell these apart.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalid covers missing, mismatched, consumed, and expired
// verification/reset tokens. The cases are deliberately indistinguishable.
var ErrTokenInvalid = goerrors.New("verification token is invalid or expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrCooldownActive rejects a resend request made inside the cooldown window.
var ErrCooldownActive = goerrors.New("a message was sent recently, wait before requesting another", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeCooldownActive).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountConflict rejects an external sign-in whose email already belongs
// to a local account. Linking without re-authentication would allow account
// takeover, so the flow stops here.
var ErrAccountConflict = goerrors.New("an account with this email already exists with a different sign-in method", goerrors.CategoryConflict).
	WithTextCode(TextCodeAccountConflict).
	WithCode(goerrors.CodeConflict)

// ErrUnauthorized is returned when a privileged mutation arrives without an
// actor. The policy layer authorizes the actor; the ledger only refuses to
// write an unattributable entry.
var ErrUnauthorized = goerrors.New("privileged mutation requires an actor", goerrors.CategoryAuthz).
	WithTextCode(TextCodeUnauthorized).
	WithCode(goerrors.CodeForbidden)

// ErrCollaboratorUnavailable wraps failures of external collaborators (mail
// sender, identity provider). It is the only retryable kind in the taxonomy.
var ErrCollaboratorUnavailable = goerrors.New("an external collaborator is unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeCollaboratorDown).
	WithCode(goerrors.CodeInternal)

// ErrNoChange signals an idempotent no-op: a role change to the current role
// or a verification request for an already-verified address. It is a signal
// for the caller's UX, not a failure.
var ErrNoChange = goerrors.New("the requested change is already in effect", goerrors.CategoryConflict).
	WithTextCode(TextCodeNoChange).
	WithCode(goerrors.CodeConflict)

// ErrTooManyLoginAttempts is returned when an account exceeds the attempt
// budget inside the throttle window.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidRole is returned when a role string is outside the closed enum.
var ErrInvalidRole = goerrors.New("unknown or invalid role", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidRole).
	WithCode(goerrors.CodeBadRequest)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrSessionInvalid is returned when a session credential cannot be decoded
// or fails signature validation.
var ErrSessionInvalid = goerrors.New("unable to decode session credential", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionDecodeError).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionExpired is returned when a session credential is past expiry.
var ErrSessionExpired = goerrors.New("session credential is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

// IsUniqueViolation matches the unique-constraint errors the supported
// drivers emit. The store relies on the constraint, not a pre-check, so
// concurrent duplicate registrations still collapse to one winner.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

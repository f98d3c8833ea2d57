package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuthProvider identifies how an account authenticates.
type AuthProvider string

const (
	// ProviderLocal is an email + password account.
	ProviderLocal AuthProvider = "local"
	// ProviderExternal is an account asserted by a third-party identity provider.
	ProviderExternal AuthProvider = "external"
)

// Account is a single identity record, local or externally authenticated.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID           uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email        string       `bun:"email,notnull,unique" json:"email,omitempty"`
	FullName     string       `bun:"full_name" json:"full_name,omitempty"`
	AvatarURL    string       `bun:"avatar_url" json:"avatar_url,omitempty"`
	AuthProvider AuthProvider `bun:"auth_provider,notnull" json:"auth_provider,omitempty"`
	// ExternalID is the provider subject id. nullzero keeps empty values as
	// NULL so the unique constraint only binds external accounts.
	ExternalID   string `bun:"external_id,nullzero,unique" json:"external_id,omitempty"`
	Role         Role   `bun:"account_role,notnull" json:"account_role,omitempty"`
	PasswordHash string `bun:"password_hash" json:"-"`

	EmailVerified             bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	VerificationToken         string     `bun:"verification_token,nullzero" json:"-"`
	VerificationTokenExpiry   *time.Time `bun:"verification_token_expiry,nullzero" json:"-"`
	LastVerificationEmailSent *time.Time `bun:"last_verification_email_sent,nullzero" json:"-"`

	ResetToken         string     `bun:"reset_token,nullzero" json:"-"`
	ResetTokenExpiry   *time.Time `bun:"reset_token_expiry,nullzero" json:"-"`
	LastResetEmailSent *time.Time `bun:"last_reset_email_sent,nullzero" json:"-"`

	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at,nullzero" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// IsLocal reports whether the account authenticates with a stored password.
func (a *Account) IsLocal() bool {
	return a.AuthProvider == ProviderLocal
}

// IsExternal reports whether the account is backed by an identity provider.
func (a *Account) IsExternal() bool {
	return a.AuthProvider == ProviderExternal
}

// HasVerificationToken reports whether a verification token pairing is live.
func (a *Account) HasVerificationToken() bool {
	return a.VerificationToken != "" && a.VerificationTokenExpiry != nil
}

// HasResetToken reports whether a reset token pairing is live.
func (a *Account) HasResetToken() bool {
	return a.ResetToken != "" && a.ResetTokenExpiry != nil
}

// NormalizeEmail lowercases and trims an address so lookups and the unique
// constraint agree on a single casing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AuditAction enumerates the privileged mutations the ledger records.
type AuditAction string

const (
	AuditAccountCreated  AuditAction = "account.created"
	AuditRoleChanged     AuditAction = "role.changed"
	AuditPromotedToAdmin AuditAction = "role.promoted_to_admin"
)

// AuditEntry is an immutable record of a privileged mutation, written in the
// same transaction as the mutation it documents.
type AuditEntry struct {
	bun.BaseModel `bun:"table:audit_entries,alias:aud"`

	ID        uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	SubjectID uuid.UUID      `bun:"subject_id,notnull,type:uuid" json:"subject_id,omitempty"`
	Action    AuditAction    `bun:"action,notnull" json:"action,omitempty"`
	ActorID   string         `bun:"actor_id" json:"actor_id,omitempty"`
	ActorType string         `bun:"actor_type,notnull" json:"actor_type,omitempty"`
	Payload   map[string]any `bun:"payload,type:jsonb" json:"payload,omitempty"`
	CreatedAt time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

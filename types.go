package identity

import (
	"context"
	"fmt"
)

// Logger is the minimal logging surface this package needs. Callers plug in
// their structured logger; the default writes to stdout.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// MailTemplate selects the message the mail collaborator renders.
type MailTemplate string

const (
	// MailVerifyEmail carries the email-ownership verification link.
	MailVerifyEmail MailTemplate = "verify_email"
	// MailResetPassword carries the password-reset link.
	MailResetPassword MailTemplate = "reset_password"
)

// Mailer is the email-delivery collaborator. Implementations render the
// template with the variables and deliver to the address.
type Mailer interface {
	Send(ctx context.Context, to string, template MailTemplate, vars map[string]any) error
}

// ExternalIdentity is the assertion the identity provider yields after a
// successful exchange: a verified subject id and email.
type ExternalIdentity struct {
	ExternalID  string
	Email       string
	DisplayName string
	AvatarURL   string
}

// IdentityExchanger trades an authorization artifact from the provider
// callback for a verified external identity.
type IdentityExchanger interface {
	Exchange(ctx context.Context, authCode string) (*ExternalIdentity, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

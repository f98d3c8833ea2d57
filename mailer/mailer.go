// Package mailer delivers the identity core's transactional email over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	identity "github.com/KaZuNa1/appointly-identity"
)

// Config holds SMTP configuration for sending emails.
type Config struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
	// BaseURL is prepended to the verification/reset links, e.g.
	// https://appointly.example.com
	BaseURL string `env:"MAIL_BASE_URL"`
}

// ConfigFromEnv reads the SMTP configuration from environment variables.
func ConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse mailer environment variables: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("missing SMTP_HOST environment variable")
	}
	if c.Port == 0 {
		return fmt.Errorf("missing SMTP_PORT environment variable")
	}
	if c.From == "" {
		return fmt.Errorf("missing SMTP_FROM environment variable")
	}
	return nil
}

// Mailer sends the identity core's templated messages. It implements
// identity.Mailer.
type Mailer struct {
	config Config
	dialer *gomail.Dialer
	logger zerolog.Logger
}

var _ identity.Mailer = (*Mailer)(nil)

// New creates a Mailer from the given configuration.
func New(cfg Config, logger zerolog.Logger) *Mailer {
	dialer := gomail.NewDialer(
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
	)

	return &Mailer{
		config: cfg,
		dialer: dialer,
		logger: logger,
	}
}

type mailContent struct {
	subject string
	body    *template.Template
	link    string
}

var templates = map[identity.MailTemplate]mailContent{
	identity.MailVerifyEmail: {
		subject: "Verify your email address",
		link:    "%s/verify-email?email=%s&token=%s",
		body: template.Must(template.New("verify_email").Parse(
			"Welcome to Appointly!\n\n" +
				"Confirm your email address by opening the link below:\n\n" +
				"{{.Link}}\n\n" +
				"The link expires at {{.ExpiresAt}}. If you did not create an " +
				"account, you can ignore this message.\n",
		)),
	},
	identity.MailResetPassword: {
		subject: "Reset your password",
		link:    "%s/password-reset?email=%s&token=%s",
		body: template.Must(template.New("reset_password").Parse(
			"A password reset was requested for your Appointly account.\n\n" +
				"Choose a new password by opening the link below:\n\n" +
				"{{.Link}}\n\n" +
				"The link expires at {{.ExpiresAt}}. If you did not request a " +
				"reset, you can ignore this message.\n",
		)),
	},
}

// Send implements identity.Mailer. The context is accepted for interface
// symmetry; gomail's dialer has no context support.
func (m *Mailer) Send(_ context.Context, to string, kind identity.MailTemplate, vars map[string]any) error {
	content, ok := templates[kind]
	if !ok {
		return fmt.Errorf("unknown mail template: %s", kind)
	}

	token, _ := vars["token"].(string)
	link := fmt.Sprintf(content.link, m.config.BaseURL, to, token)

	var body bytes.Buffer
	err := content.body.Execute(&body, map[string]any{
		"Link":      link,
		"ExpiresAt": vars["expires_at"],
	})
	if err != nil {
		return fmt.Errorf("failed to render mail template %s: %w", kind, err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", content.subject)
	msg.SetBody("text/plain", body.String())

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Error().Err(err).Str("to", to).Str("template", string(kind)).Msg("failed to send mail")
		return err
	}

	m.logger.Debug().Str("to", to).Str("template", string(kind)).Msg("mail sent")
	return nil
}

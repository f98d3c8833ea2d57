package mailer

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "github.com/KaZuNa1/appointly-identity"
)

func TestConfigFromEnv(t *testing.T) {
	t.Run("reads the SMTP settings", func(t *testing.T) {
		t.Setenv("SMTP_HOST", "smtp.example.com")
		t.Setenv("SMTP_PORT", "587")
		t.Setenv("SMTP_USERNAME", "mailer")
		t.Setenv("SMTP_PASSWORD", "secret")
		t.Setenv("SMTP_FROM", "no-reply@appointly.example.com")
		t.Setenv("MAIL_BASE_URL", "https://appointly.example.com")

		cfg, err := ConfigFromEnv()
		require.NoError(t, err)

		assert.Equal(t, "smtp.example.com", cfg.Host)
		assert.Equal(t, 587, cfg.Port)
		assert.Equal(t, "no-reply@appointly.example.com", cfg.From)
		assert.Equal(t, "https://appointly.example.com", cfg.BaseURL)
	})

	t.Run("rejects missing host", func(t *testing.T) {
		t.Setenv("SMTP_HOST", "")
		t.Setenv("SMTP_PORT", "587")
		t.Setenv("SMTP_FROM", "no-reply@appointly.example.com")

		_, err := ConfigFromEnv()
		assert.Error(t, err)
	})

	t.Run("rejects missing from address", func(t *testing.T) {
		t.Setenv("SMTP_HOST", "smtp.example.com")
		t.Setenv("SMTP_PORT", "587")
		t.Setenv("SMTP_FROM", "")

		_, err := ConfigFromEnv()
		assert.Error(t, err)
	})
}

func TestTemplates(t *testing.T) {
	expires := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, kind := range []identity.MailTemplate{identity.MailVerifyEmail, identity.MailResetPassword} {
		t.Run(string(kind), func(t *testing.T) {
			content, ok := templates[kind]
			require.True(t, ok)
			require.NotEmpty(t, content.subject)

			link := fmt.Sprintf(content.link, "https://appointly.example.com", "user@example.com", "tok-123")

			var body bytes.Buffer
			err := content.body.Execute(&body, map[string]any{
				"Link":      link,
				"ExpiresAt": expires,
			})
			require.NoError(t, err)

			assert.Contains(t, body.String(), link)
			assert.Contains(t, body.String(), "tok-123")
		})
	}
}

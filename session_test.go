package identity_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "github.com/KaZuNa1/appointly-identity"
)

func sessionConfig() identity.Config {
	return identity.Config{
		SigningKey: []byte("test-signing-key-0123456789abcdef"),
		Issuer:     "appointly",
		Audience:   []string{"appointly-api"},
		SessionTTL: time.Hour,
	}
}

func TestSessionServiceIssue(t *testing.T) {
	sessions := identity.NewSessionService(sessionConfig())

	account := &identity.Account{
		ID:   uuid.New(),
		Role: identity.RoleProvider,
	}

	t.Run("round trip preserves identity", func(t *testing.T) {
		raw, err := sessions.Issue(account)
		require.NoError(t, err)
		require.NotEmpty(t, raw)

		session, err := sessions.Recover(raw)
		require.NoError(t, err)

		assert.Equal(t, account.ID, session.AccountID)
		assert.Equal(t, identity.RoleProvider, session.Role)
		assert.WithinDuration(t, time.Now(), session.IssuedAt, 5*time.Second)
		assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)
	})

	t.Run("refuses to issue without an account", func(t *testing.T) {
		_, err := sessions.Issue(nil)
		assert.Error(t, err)

		_, err = sessions.Issue(&identity.Account{})
		assert.Error(t, err)
	})
}

func TestSessionServiceRecover(t *testing.T) {
	cfg := sessionConfig()
	sessions := identity.NewSessionService(cfg)

	account := &identity.Account{
		ID:   uuid.New(),
		Role: identity.RoleCustomer,
	}

	raw, err := sessions.Issue(account)
	require.NoError(t, err)

	t.Run("tampered credential", func(t *testing.T) {
		_, err := sessions.Recover(raw + "x")
		assert.ErrorIs(t, err, identity.ErrSessionInvalid)
	})

	t.Run("garbage credential", func(t *testing.T) {
		_, err := sessions.Recover("not.a.credential")
		assert.ErrorIs(t, err, identity.ErrSessionInvalid)
	})

	t.Run("signed with a different key", func(t *testing.T) {
		other := sessionConfig()
		other.SigningKey = []byte("another-signing-key-entirely!!!!")

		foreign, err := identity.NewSessionService(other).Issue(account)
		require.NoError(t, err)

		_, err = sessions.Recover(foreign)
		assert.ErrorIs(t, err, identity.ErrSessionInvalid)
	})

	t.Run("issuer mismatch", func(t *testing.T) {
		other := sessionConfig()
		other.Issuer = "someone-else"

		foreign, err := identity.NewSessionService(other).Issue(account)
		require.NoError(t, err)

		_, err = sessions.Recover(foreign)
		assert.ErrorIs(t, err, identity.ErrSessionInvalid)
	})

	t.Run("expired credential", func(t *testing.T) {
		issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		past := identity.NewSessionService(cfg, identity.WithSessionClock(func() time.Time {
			return issuedAt
		}))
		raw, err := past.Issue(account)
		require.NoError(t, err)

		later := identity.NewSessionService(cfg, identity.WithSessionClock(func() time.Time {
			return issuedAt.Add(2 * time.Hour)
		}))

		_, err = later.Recover(raw)
		assert.ErrorIs(t, err, identity.ErrSessionExpired)
	})

	t.Run("role captured at issuance does not move", func(t *testing.T) {
		session, err := sessions.Recover(raw)
		require.NoError(t, err)
		require.Equal(t, identity.RoleCustomer, session.Role)

		account.Role = identity.RoleAdmin

		session, err = sessions.Recover(raw)
		require.NoError(t, err)
		assert.Equal(t, identity.RoleCustomer, session.Role)
	})
}

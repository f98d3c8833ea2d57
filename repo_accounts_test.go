package identity_test

import (
	"context"
	"testing"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "github.com/KaZuNa1/appointly-identity"
)

func TestAccountsCreate(t *testing.T) {
	repo, _ := setupRepoManager(t)
	ctx := context.Background()

	t.Run("fills defaults", func(t *testing.T) {
		created, err := repo.Accounts().Create(ctx, &identity.Account{
			Email:        "  Alice@Example.COM ",
			FullName:     "Alice",
			PasswordHash: "hash",
		})
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, created.ID)
		assert.Equal(t, "alice@example.com", created.Email)
		assert.Equal(t, identity.RoleCustomer, created.Role)
		assert.Equal(t, identity.ProviderLocal, created.AuthProvider)
		assert.False(t, created.EmailVerified)
	})

	t.Run("duplicate email collapses to one winner", func(t *testing.T) {
		_, err := repo.Accounts().Create(ctx, &identity.Account{
			Email:        "ALICE@example.com",
			PasswordHash: "other-hash",
		})
		assert.ErrorIs(t, err, identity.ErrDuplicateIdentity)
	})

	t.Run("duplicate external id rejected", func(t *testing.T) {
		_, err := repo.Accounts().Create(ctx, &identity.Account{
			Email:        "bob@example.com",
			AuthProvider: identity.ProviderExternal,
			ExternalID:   "ext-123",
		})
		require.NoError(t, err)

		_, err = repo.Accounts().Create(ctx, &identity.Account{
			Email:        "carol@example.com",
			AuthProvider: identity.ProviderExternal,
			ExternalID:   "ext-123",
		})
		assert.ErrorIs(t, err, identity.ErrDuplicateIdentity)
	})

	t.Run("local accounts do not clash on the null external id", func(t *testing.T) {
		_, err := repo.Accounts().Create(ctx, &identity.Account{
			Email:        "dave@example.com",
			PasswordHash: "hash",
		})
		require.NoError(t, err)

		_, err = repo.Accounts().Create(ctx, &identity.Account{
			Email:        "erin@example.com",
			PasswordHash: "hash",
		})
		assert.NoError(t, err)
	})
}

func TestAccountsGetByEmail(t *testing.T) {
	repo, _ := setupRepoManager(t)
	ctx := context.Background()

	created, err := repo.Accounts().Create(ctx, &identity.Account{
		Email:        "frank@example.com",
		PasswordHash: "hash",
	})
	require.NoError(t, err)

	t.Run("lookup normalizes casing", func(t *testing.T) {
		found, err := repo.Accounts().GetByEmail(ctx, "  FRANK@Example.com ")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := repo.Accounts().GetByEmail(ctx, "nobody@example.com")
		assert.True(t, repository.IsRecordNotFound(err))
	})
}

func TestAccountsVerificationTokenLifecycle(t *testing.T) {
	repo, db := setupRepoManager(t)
	ctx := context.Background()

	account, err := repo.Accounts().Create(ctx, &identity.Account{
		Email:        "grace@example.com",
		PasswordHash: "hash",
	})
	require.NoError(t, err)

	issued := identity.IssuedToken{
		Value:     "opaque-verification-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}

	updated, err := repo.Accounts().SetVerificationTokenTx(ctx, db, account.ID, issued, time.Now())
	require.NoError(t, err)
	require.True(t, updated.HasVerificationToken())
	assert.Equal(t, issued.Value, updated.VerificationToken)

	t.Run("wrong token matches zero rows", func(t *testing.T) {
		_, err := repo.Accounts().ConsumeVerificationTokenTx(ctx, db, account.ID, "wrong")
		assert.ErrorIs(t, err, identity.ErrTokenInvalid)
	})

	t.Run("consume flips verified and clears the pairing", func(t *testing.T) {
		consumed, err := repo.Accounts().ConsumeVerificationTokenTx(ctx, db, account.ID, issued.Value)
		require.NoError(t, err)

		assert.True(t, consumed.EmailVerified)
		assert.False(t, consumed.HasVerificationToken())
	})

	t.Run("replay fails after consume", func(t *testing.T) {
		_, err := repo.Accounts().ConsumeVerificationTokenTx(ctx, db, account.ID, issued.Value)
		assert.ErrorIs(t, err, identity.ErrTokenInvalid)
	})
}

func TestAccountsResetTokenLifecycle(t *testing.T) {
	repo, db := setupRepoManager(t)
	ctx := context.Background()

	account, err := repo.Accounts().Create(ctx, &identity.Account{
		Email:        "heidi@example.com",
		PasswordHash: "old-hash",
	})
	require.NoError(t, err)

	issued := identity.IssuedToken{
		Value:     "opaque-reset-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}

	_, err = repo.Accounts().SetResetTokenTx(ctx, db, account.ID, issued, time.Now())
	require.NoError(t, err)

	t.Run("consume replaces the password hash", func(t *testing.T) {
		consumed, err := repo.Accounts().ConsumeResetTokenTx(ctx, db, account.ID, issued.Value, "new-hash")
		require.NoError(t, err)

		assert.Equal(t, "new-hash", consumed.PasswordHash)
		assert.True(t, consumed.EmailVerified)
		assert.False(t, consumed.HasResetToken())
	})

	t.Run("replay fails after consume", func(t *testing.T) {
		_, err := repo.Accounts().ConsumeResetTokenTx(ctx, db, account.ID, issued.Value, "newer-hash")
		assert.ErrorIs(t, err, identity.ErrTokenInvalid)
	})
}

func TestAccountsUpdateRole(t *testing.T) {
	repo, db := setupRepoManager(t)
	ctx := context.Background()

	account, err := repo.Accounts().Create(ctx, &identity.Account{
		Email:        "ivan@example.com",
		PasswordHash: "hash",
	})
	require.NoError(t, err)

	t.Run("guarded update succeeds from the current role", func(t *testing.T) {
		updated, err := repo.Accounts().UpdateRoleTx(ctx, db, account.ID, identity.RoleCustomer, identity.RoleProvider)
		require.NoError(t, err)
		assert.Equal(t, identity.RoleProvider, updated.Role)
	})

	t.Run("stale guard matches zero rows", func(t *testing.T) {
		_, err := repo.Accounts().UpdateRoleTx(ctx, db, account.ID, identity.RoleCustomer, identity.RoleAdmin)
		assert.ErrorIs(t, err, identity.ErrNotFound)
	})
}

func TestAccountsLoginBookkeeping(t *testing.T) {
	repo, _ := setupRepoManager(t)
	ctx := context.Background()

	account, err := repo.Accounts().Create(ctx, &identity.Account{
		Email:        "judy@example.com",
		PasswordHash: "hash",
	})
	require.NoError(t, err)

	require.NoError(t, repo.Accounts().TrackAttemptedLogin(ctx, account))

	reloaded, err := repo.Accounts().GetByEmail(ctx, "judy@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.LoginAttempts)
	assert.NotNil(t, reloaded.LoginAttemptAt)

	require.NoError(t, repo.Accounts().TrackSuccessfulLogin(ctx, reloaded))

	reloaded, err = repo.Accounts().GetByEmail(ctx, "judy@example.com")
	require.NoError(t, err)
	assert.Zero(t, reloaded.LoginAttempts)
	assert.Nil(t, reloaded.LoginAttemptAt)
	assert.NotNil(t, reloaded.LoggedInAt)
}

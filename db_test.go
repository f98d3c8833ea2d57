package identity_test

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	identity "github.com/KaZuNa1/appointly-identity"
)

const (
	sqliteCreateAccounts = `CREATE TABLE accounts (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT NOT NULL,
    full_name TEXT,
    avatar_url TEXT,
    auth_provider TEXT NOT NULL DEFAULT 'local',
    external_id TEXT,
    account_role TEXT NOT NULL DEFAULT 'customer',
    password_hash TEXT,
    is_email_verified BOOLEAN NOT NULL DEFAULT FALSE,
    verification_token TEXT,
    verification_token_expiry TIMESTAMP NULL,
    last_verification_email_sent TIMESTAMP NULL,
    reset_token TEXT,
    reset_token_expiry TIMESTAMP NULL,
    last_reset_email_sent TIMESTAMP NULL,
    login_attempts INTEGER NOT NULL DEFAULT 0,
    login_attempt_at TIMESTAMP NULL,
    loggedin_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    deleted_at TIMESTAMP NULL,
    CONSTRAINT uq_accounts_email UNIQUE (email),
    CONSTRAINT uq_accounts_external_id UNIQUE (external_id)
);`

	sqliteCreateAuditEntries = `CREATE TABLE audit_entries (
    id TEXT NOT NULL PRIMARY KEY,
    subject_id TEXT NOT NULL,
    action TEXT NOT NULL,
    actor_id TEXT,
    actor_type TEXT NOT NULL,
    payload TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (subject_id) REFERENCES accounts (id)
);`
)

func setupRepoManager(t *testing.T) (identity.RepositoryManager, *bun.DB) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	_, err = bunDB.Exec(sqliteCreateAccounts)
	require.NoError(t, err)
	_, err = bunDB.Exec(sqliteCreateAuditEntries)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	repo := identity.NewRepositoryManager(bunDB)
	repo.MustValidate()

	return repo, bunDB
}

package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories plus the transaction boundary
// every multi-record operation runs inside.
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Accounts() Accounts
	AuditEntries() AuditEntries
}

type mngr struct {
	db           *bun.DB
	accounts     Accounts
	auditEntries AuditEntries
}

// NewRepositoryManager wires the account and audit stores over one bun.DB.
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:           db,
		accounts:     NewAccountsRepository(db),
		auditEntries: NewAuditEntriesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.auditEntries == nil {
		return errors.New("repository auditEntries should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) AuditEntries() AuditEntries {
	return m.auditEntries
}

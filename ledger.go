package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RoleChange is the outcome of a ChangeRole call. Changed is false for the
// idempotent no-op; in that case no audit entry exists.
type RoleChange struct {
	Account      *Account
	PreviousRole Role
	NewRole      Role
	Changed      bool
	Entry        *AuditEntry
}

// Ledger performs role mutations and writes the audit trail. It assumes the
// policy layer has already authorized the actor; its own concern is
// atomicity and attribution.
type Ledger struct {
	repo   RepositoryManager
	logger Logger
	now    func() time.Time
}

// LedgerOption customizes a Ledger.
type LedgerOption func(*Ledger)

// WithLedgerLogger overrides the ledger's logger.
func WithLedgerLogger(l Logger) LedgerOption {
	return func(lg *Ledger) {
		if l != nil {
			lg.logger = l
		}
	}
}

// WithLedgerClock injects a clock for tests.
func WithLedgerClock(clock func() time.Time) LedgerOption {
	return func(lg *Ledger) {
		if clock != nil {
			lg.now = clock
		}
	}
}

// NewLedger builds the role & audit ledger over the repository manager.
func NewLedger(repo RepositoryManager, opts ...LedgerOption) *Ledger {
	lg := &Ledger{
		repo:   repo,
		logger: defLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(lg)
		}
	}
	return lg
}

// ChangeRole moves an account to newRole and appends exactly one audit entry
// in the same transaction. Changing to the current role is an idempotent
// no-op: Changed is false and nothing is appended.
func (l *Ledger) ChangeRole(ctx context.Context, accountID uuid.UUID, newRole Role, actor ActorRef) (*RoleChange, error) {
	if !newRole.IsValid() {
		return nil, ErrInvalidRole.WithMetadata(map[string]any{"role": string(newRole)})
	}

	if actor.IsZero() {
		return nil, ErrUnauthorized
	}

	result := &RoleChange{NewRole: newRole}

	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := l.repo.Accounts().GetByIDTx(ctx, tx, accountID.String())
		if err != nil {
			if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
				return ErrNotFound.WithMetadata(map[string]any{"id": accountID.String()})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for role change")
		}

		result.PreviousRole = account.Role

		if account.Role == newRole {
			result.Account = account
			result.Changed = false
			return nil
		}

		updated, err := l.repo.Accounts().UpdateRoleTx(ctx, tx, accountID, account.Role, newRole)
		if err != nil {
			if goerrors.Is(err, ErrNotFound) {
				// The role guard matched zero rows: a concurrent mutation won.
				return goerrors.New("role was changed concurrently", goerrors.CategoryConflict).
					WithCode(goerrors.CodeConflict).
					WithMetadata(map[string]any{"id": accountID.String()})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account role")
		}

		entry, err := l.appendRoleEntryTx(ctx, tx, updated, account.Role, newRole, actor)
		if err != nil {
			return err
		}

		result.Account = updated
		result.Entry = entry
		result.Changed = true
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "role change transaction failed")
	}

	return result, nil
}

func (l *Ledger) appendRoleEntryTx(ctx context.Context, tx bun.IDB, account *Account, from, to Role, actor ActorRef) (*AuditEntry, error) {
	action := AuditRoleChanged
	if to == RoleAdmin {
		action = AuditPromotedToAdmin
	}

	entry := &AuditEntry{
		SubjectID: account.ID,
		Action:    action,
		ActorID:   actor.ID,
		ActorType: string(actor.Type),
		Payload: map[string]any{
			"previous_role": string(from),
			"new_role":      string(to),
			"actor":         actor.Descriptor(),
		},
		CreatedAt: l.now(),
	}

	created, err := l.repo.AuditEntries().AppendTx(ctx, tx, entry)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to append audit entry for role change")
	}

	return created, nil
}

// RecordAccountCreatedTx appends the creation entry inside the transaction
// that creates the account. Both registration paths call it.
func (l *Ledger) RecordAccountCreatedTx(ctx context.Context, tx bun.IDB, account *Account, actor ActorRef) (*AuditEntry, error) {
	entry := &AuditEntry{
		SubjectID: account.ID,
		Action:    AuditAccountCreated,
		ActorID:   actor.ID,
		ActorType: string(actor.Type),
		Payload: map[string]any{
			"auth_provider": string(account.AuthProvider),
			"role":          string(account.Role),
			"actor":         actor.Descriptor(),
		},
		CreatedAt: l.now(),
	}

	created, err := l.repo.AuditEntries().AppendTx(ctx, tx, entry)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to append account creation audit entry")
	}

	return created, nil
}

// History returns the account's audit entries in append order.
func (l *Ledger) History(ctx context.Context, accountID uuid.UUID) ([]*AuditEntry, error) {
	if _, err := l.repo.Accounts().GetByID(ctx, accountID.String()); err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			return nil, ErrNotFound.WithMetadata(map[string]any{"id": accountID.String()})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for history")
	}

	return l.repo.AuditEntries().History(ctx, accountID)
}

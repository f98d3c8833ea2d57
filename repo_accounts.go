package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// The single-use flows clear the token pairing in the same statement that
// applies the semantic effect. The token guard in the WHERE clause makes the
// consume a compare-and-set: a replay or a concurrent consume matches zero
// rows.
var consumeVerificationTokenSQL = `UPDATE "accounts" AS "acc"
SET
	"is_email_verified" = TRUE,
	"verification_token" = NULL,
	"verification_token_expiry" = NULL
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."id" = ?
AND "acc"."verification_token" = ?
RETURNING *;`

var consumeResetTokenSQL = `UPDATE "accounts" AS "acc"
SET
	"is_email_verified" = TRUE,
	"password_hash" = ?,
	"reset_token" = NULL,
	"reset_token_expiry" = NULL
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."id" = ?
AND "acc"."reset_token" = ?
RETURNING *;`

var setVerificationTokenSQL = `UPDATE "accounts" AS "acc"
SET
	"verification_token" = ?,
	"verification_token_expiry" = ?,
	"last_verification_email_sent" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."id" = ?
RETURNING *;`

var setResetTokenSQL = `UPDATE "accounts" AS "acc"
SET
	"reset_token" = ?,
	"reset_token_expiry" = ?,
	"last_reset_email_sent" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."id" = ?
RETURNING *;`

// The role guard serializes concurrent role mutations: the loser of a race
// matches zero rows instead of silently overwriting.
var updateRoleSQL = `UPDATE "accounts" AS "acc"
SET
	"account_role" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."id" = ?
AND "acc"."account_role" = ?
RETURNING *;`

// Accounts is the durable record of identities.
type Accounts interface {
	repository.Repository[*Account]

	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)
	GetByExternalID(ctx context.Context, externalID string) (*Account, error)
	GetByExternalIDTx(ctx context.Context, tx bun.IDB, externalID string) (*Account, error)

	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)

	SetVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token IssuedToken, sentAt time.Time) (*Account, error)
	ConsumeVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string) (*Account, error)
	SetResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token IssuedToken, sentAt time.Time) (*Account, error)
	ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token, passwordHash string) (*Account, error)

	UpdateRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, from, to Role) (*Account, error)

	TrackAttemptedLogin(ctx context.Context, account *Account) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, account *Account) error
	TrackSuccessfulLogin(ctx context.Context, account *Account) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

// NewAccountsRepository builds the bun-backed account store.
func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	return a.getByColumnTx(ctx, tx, "email", NormalizeEmail(email))
}

func (a *accounts) GetByExternalID(ctx context.Context, externalID string) (*Account, error) {
	return a.GetByExternalIDTx(ctx, a.db, externalID)
}

func (a *accounts) GetByExternalIDTx(ctx context.Context, tx bun.IDB, externalID string) (*Account, error) {
	return a.getByColumnTx(ctx, tx, "external_id", externalID)
}

func (a *accounts) getByColumnTx(ctx context.Context, tx bun.IDB, column, value string) (*Account, error) {
	if value == "" {
		return nil, repository.NewRecordNotFound()
	}

	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{column: value})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)

	created, err := a.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicateIdentity.WithMetadata(map[string]any{
				"email":       record.Email,
				"external_id": record.ExternalID,
			})
		}
		return nil, err
	}

	return created, nil
}

func (a *accounts) SetVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token IssuedToken, sentAt time.Time) (*Account, error) {
	return a.rawSingleTx(ctx, tx, setVerificationTokenSQL, token.Value, token.ExpiresAt, sentAt, id.String())
}

func (a *accounts) ConsumeVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string) (*Account, error) {
	record, err := a.rawSingleTx(ctx, tx, consumeVerificationTokenSQL, id.String(), token)
	if err != nil {
		if goerrors.Is(err, ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	return record, nil
}

func (a *accounts) SetResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token IssuedToken, sentAt time.Time) (*Account, error) {
	return a.rawSingleTx(ctx, tx, setResetTokenSQL, token.Value, token.ExpiresAt, sentAt, id.String())
}

func (a *accounts) ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token, passwordHash string) (*Account, error) {
	record, err := a.rawSingleTx(ctx, tx, consumeResetTokenSQL, passwordHash, id.String(), token)
	if err != nil {
		if goerrors.Is(err, ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	return record, nil
}

func (a *accounts) UpdateRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, from, to Role) (*Account, error) {
	return a.rawSingleTx(ctx, tx, updateRoleSQL, string(to), id.String(), string(from))
}

func (a *accounts) rawSingleTx(ctx context.Context, tx bun.IDB, sql string, args ...any) (*Account, error) {
	res, err := a.Repository.RawTx(ctx, tx, sql, args...)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, ErrNotFound
	}

	return res[0], nil
}

func (a *accounts) TrackAttemptedLogin(ctx context.Context, account *Account) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, account)
}

func (a *accounts) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, account *Account) error {
	now := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"login_attempts" = ?,
			"login_attempt_at" = ?
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, account.LoginAttempts+1, now, account.ID).Exec(ctx)

	return err
}

func (a *accounts) TrackSuccessfulLogin(ctx context.Context, account *Account) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, account)
}

func (a *accounts) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error {
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, loggedInAt, account.ID).Exec(ctx)

	return err
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.Role == "" {
		record.Role = RoleCustomer
	}

	if record.AuthProvider == "" {
		record.AuthProvider = ProviderLocal
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

package identity

import (
	"context"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuditEntries is the append-only ledger store. Entries are written inside
// the transaction of the mutation they document and never updated.
type AuditEntries interface {
	repository.Repository[*AuditEntry]

	Append(ctx context.Context, entry *AuditEntry) (*AuditEntry, error)
	AppendTx(ctx context.Context, tx bun.IDB, entry *AuditEntry) (*AuditEntry, error)
	History(ctx context.Context, subjectID uuid.UUID) ([]*AuditEntry, error)
}

type auditEntries struct {
	repository.Repository[*AuditEntry]
	db *bun.DB
}

var _ AuditEntries = (*auditEntries)(nil)

// NewAuditEntriesRepository builds the bun-backed audit store.
func NewAuditEntriesRepository(db *bun.DB) AuditEntries {
	repo := repository.NewRepository[*AuditEntry](db, repository.ModelHandlers[*AuditEntry]{
		NewRecord: func() *AuditEntry { return &AuditEntry{} },
		GetID: func(e *AuditEntry) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *AuditEntry, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
	})

	return &auditEntries{
		Repository: repo,
		db:         db,
	}
}

func (a *auditEntries) Append(ctx context.Context, entry *AuditEntry) (*AuditEntry, error) {
	return a.AppendTx(ctx, a.db, entry)
}

func (a *auditEntries) AppendTx(ctx context.Context, tx bun.IDB, entry *AuditEntry) (*AuditEntry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	// Set the timestamp in-process so append order survives databases with
	// coarse CURRENT_TIMESTAMP resolution.
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return a.Repository.CreateTx(ctx, tx, entry)
}

// History returns the subject's entries in append order.
func (a *auditEntries) History(ctx context.Context, subjectID uuid.UUID) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	err := a.db.NewSelect().
		Model(&entries).
		Where("?TableAlias.subject_id = ?", subjectID.String()).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

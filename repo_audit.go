package gatekeeper

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuditTrail is the append-only ledger. The interface deliberately exposes no
// update or delete operation; the AuditRecord model hook backstops that at
// the ORM layer for anything reaching around this interface.
type AuditTrail interface {
	Append(ctx context.Context, record *AuditRecord) (*AuditRecord, error)
	AppendTx(ctx context.Context, tx bun.IDB, record *AuditRecord) (*AuditRecord, error)
	Search(ctx context.Context, query AuditQuery) (*AuditPage, error)
	HistoryFor(ctx context.Context, accountID uuid.UUID) ([]*AuditRecord, error)
}

type auditTrail struct {
	repo repository.Repository[*AuditRecord]
	db   *bun.DB
}

var _ AuditTrail = (*auditTrail)(nil)

func NewAuditTrail(db *bun.DB) AuditTrail {
	handlers := repository.ModelHandlers[*AuditRecord]{
		NewRecord: func() *AuditRecord { return &AuditRecord{} },
		GetID: func(r *AuditRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *AuditRecord, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	}

	return &auditTrail{
		repo: repository.NewRepository(db, handlers),
		db:   db,
	}
}

func (t *auditTrail) Append(ctx context.Context, record *AuditRecord) (*AuditRecord, error) {
	return t.AppendTx(ctx, t.db, record)
}

func (t *auditTrail) AppendTx(ctx context.Context, tx bun.IDB, record *AuditRecord) (*AuditRecord, error) {
	if record == nil {
		return nil, ErrAuditImmutable.WithMetadata(map[string]any{
			"reason": "nil record",
		})
	}

	if !record.Action.IsValid() {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"action": string(record.Action),
		})
	}

	return t.repo.CreateTx(ctx, tx, record)
}

func (t *auditTrail) Search(ctx context.Context, query AuditQuery) (*AuditPage, error) {
	var records []*AuditRecord

	q := t.db.NewSelect().
		Model(&records).
		Relation("Account", selectAccountSummary).
		Relation("Performer", selectAccountSummary)

	if query.AccountID != nil {
		q = q.Where("?TableAlias.account_id = ?", *query.AccountID)
	}
	if query.Action != "" {
		q = q.Where("?TableAlias.action = ?", query.Action)
	}
	if query.StartDate != nil {
		q = q.Where("?TableAlias.created_at >= ?", *query.StartDate)
	}
	if query.EndDate != nil {
		q = q.Where("?TableAlias.created_at <= ?", *query.EndDate)
	}

	total, err := q.
		Order("created_at DESC").
		Limit(query.limit()).
		Offset(query.offset()).
		ScanAndCount(ctx)
	if err != nil {
		return nil, err
	}

	page := query.Page
	if page < 1 {
		page = 1
	}

	pages := total / query.limit()
	if total%query.limit() != 0 {
		pages++
	}

	return &AuditPage{
		Records: records,
		Count:   len(records),
		Total:   total,
		Page:    page,
		Pages:   pages,
	}, nil
}

func (t *auditTrail) HistoryFor(ctx context.Context, accountID uuid.UUID) ([]*AuditRecord, error) {
	var records []*AuditRecord
	err := t.db.NewSelect().
		Model(&records).
		Relation("Performer", selectAccountSummary).
		Where("?TableAlias.account_id = ?", accountID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

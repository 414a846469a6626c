package gatekeeper

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts is the credential store. It knows nothing about transition rules;
// the guarded status update below is plumbing for the AccessStateMachine.
type Accounts interface {
	repository.Repository[*Account]

	Register(ctx context.Context, account *Account) (*Account, error)
	RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)

	UpdateAccessStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, expected AccessStatus, stamp AccessStamp) (*Account, error)

	ListWithProvenance(ctx context.Context) ([]*Account, error)
	GetWithProvenance(ctx context.Context, id uuid.UUID) (*Account, error)
}

// AccessStamp carries the fields a transition writes alongside the status.
// Granting clears any prior revocation stamps; revoking retains the grant
// stamps so history can still answer "who granted the revoked access".
type AccessStamp struct {
	Status AccessStatus
	At     time.Time
	By     uuid.UUID
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

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

func (a *accounts) Register(ctx context.Context, account *Account) (*Account, error) {
	return a.RegisterTx(ctx, a.db, account)
}

func (a *accounts) RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	return a.CreateTx(ctx, tx, account)
}

func (a *accounts) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *accounts) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Account, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *accounts) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*Account, error) {
	options := resolveAccountIdentifier(identifier)
	if len(options) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"identifier": identifier,
			})
	}

	for _, opt := range options {
		record := &Account{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

// UpdateAccessStatusTx performs the compare-and-set status write: the UPDATE
// only matches while the account still holds the expected status, so a
// concurrent transition surfaces as ErrTransitionConflict instead of a lost
// update with a fabricated previous status.
func (a *accounts) UpdateAccessStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, expected AccessStatus, stamp AccessStamp) (*Account, error) {
	q := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("access_status = ?", stamp.Status).
		Set("updated_at = ?", stamp.At)

	switch stamp.Status {
	case AccessGranted:
		q = q.
			Set("access_granted_at = ?", stamp.At).
			Set("access_granted_by = ?", stamp.By).
			Set("access_revoked_at = NULL").
			Set("access_revoked_by = NULL")
	case AccessRevoked:
		q = q.
			Set("access_revoked_at = ?", stamp.At).
			Set("access_revoked_by = ?", stamp.By)
	default:
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"to": stamp.Status,
		})
	}

	res, err := q.
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.access_status = ?", expected).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, ErrTransitionConflict.WithMetadata(map[string]any{
			"account_id": id.String(),
			"expected":   expected,
		})
	}

	record := &Account{}
	if err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, err
	}

	return record, nil
}

func (a *accounts) ListWithProvenance(ctx context.Context) ([]*Account, error) {
	var records []*Account
	err := a.db.NewSelect().
		Model(&records).
		Relation("GrantedBy", selectAccountSummary).
		Relation("RevokedBy", selectAccountSummary).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (a *accounts) GetWithProvenance(ctx context.Context, id uuid.UUID) (*Account, error) {
	record := &Account{}
	err := a.db.NewSelect().
		Model(record).
		Relation("GrantedBy", selectAccountSummary).
		Relation("RevokedBy", selectAccountSummary).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// selectAccountSummary narrows relation expansion to name/email, matching the
// admin listing contract (performer fields expanded, hash never selected).
func selectAccountSummary(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Column("id", "name", "email")
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleUser
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveAccountIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 2)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  strings.ToLower(trimmed),
		})
	}

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}

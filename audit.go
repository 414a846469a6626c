package gatekeeper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuditAction enumerates the access-relevant events the trail records.
type AuditAction string

const (
	AuditActionGranted      AuditAction = "granted"
	AuditActionRevoked      AuditAction = "revoked"
	AuditActionLoginSuccess AuditAction = "login_success"
	AuditActionLoginFailed  AuditAction = "login_failed"
	AuditActionAccessDenied AuditAction = "access_denied"
)

// IsValid checks the action against the known set.
func (a AuditAction) IsValid() bool {
	switch a {
	case AuditActionGranted, AuditActionRevoked, AuditActionLoginSuccess,
		AuditActionLoginFailed, AuditActionAccessDenied:
		return true
	default:
		return false
	}
}

// AuditRecord is one immutable entry in the access ledger. PerformedBy is nil
// for self-initiated events such as login attempts. Records only carry a
// creation timestamp; there is nothing to update.
type AuditRecord struct {
	bun.BaseModel `bun:"table:audit_records,alias:aud"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID      `bun:"account_id,notnull,type:uuid" json:"account_id"`
	Action        AuditAction    `bun:"action,notnull" json:"action"`
	PerformedBy   *uuid.UUID     `bun:"performed_by,nullzero,type:uuid" json:"performed_by,omitempty"`
	IPAddress     string         `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent     string         `bun:"user_agent" json:"user_agent,omitempty"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	Account       *Account       `bun:"rel:belongs-to,join:account_id=id" json:"account,omitempty"`
	Performer     *Account       `bun:"rel:belongs-to,join:performed_by=id" json:"performer,omitempty"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
}

var _ bun.BeforeAppendModelHook = (*AuditRecord)(nil)

// BeforeAppendModel enforces the append-only invariant at the ORM boundary:
// update and delete queries against the ledger fail before they reach the
// storage engine.
func (r *AuditRecord) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now()
		}
		return nil
	case *bun.UpdateQuery, *bun.DeleteQuery:
		return ErrAuditImmutable.WithMetadata(map[string]any{
			"record_id": r.ID.String(),
		})
	default:
		return nil
	}
}

// AddMetadata appends structured context to the record prior to insertion.
func (r *AuditRecord) AddMetadata(key string, val any) *AuditRecord {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = val
	return r
}

// RequestMeta carries client attribution captured from the transport layer.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Apply stamps the attribution onto a record.
func (m RequestMeta) Apply(r *AuditRecord) *AuditRecord {
	r.IPAddress = m.IPAddress
	r.UserAgent = m.UserAgent
	return r
}

// AuditQuery filters the paginated ledger search. Zero values mean "no
// filter". Page is 1-based; Limit defaults to 100.
type AuditQuery struct {
	AccountID *uuid.UUID
	Action    AuditAction
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Page      int
}

func (q AuditQuery) limit() int {
	if q.Limit <= 0 {
		return 100
	}
	return q.Limit
}

func (q AuditQuery) offset() int {
	page := q.Page
	if page <= 1 {
		return 0
	}
	return (page - 1) * q.limit()
}

// AuditPage is one page of ledger results, newest first.
type AuditPage struct {
	Records []*AuditRecord `json:"records"`
	Count   int            `json:"count"`
	Total   int            `json:"total"`
	Page    int            `json:"page"`
	Pages   int            `json:"pages"`
}

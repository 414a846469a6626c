package gatekeeper

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountRole is the account's role
type AccountRole = string

const (
	// RoleUser is a regular, non-privileged account
	RoleUser AccountRole = "user"
	// RoleAdmin can manage other accounts' access
	RoleAdmin AccountRole = "admin"
)

// AccessStatus is the tri-state flag gating protected endpoints.
type AccessStatus = string

const (
	// AccessPending is the initial state for self-registered accounts,
	// awaiting an admin decision.
	AccessPending AccessStatus = "pending"
	// AccessGranted lets the account through the gate.
	AccessGranted AccessStatus = "granted"
	// AccessRevoked blocks the account until an admin re-grants it.
	AccessRevoked AccessStatus = "revoked"
)

// Account is the account model. AccessStatus and its provenance stamps are
// owned by the AccessStateMachine; nothing else should mutate them.
type Account struct {
	bun.BaseModel   `bun:"table:accounts,alias:acc"`
	ID              uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name            string       `bun:"name,notnull" json:"name,omitempty"`
	Email           string       `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone           string       `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash    string       `bun:"password_hash" json:"-"`
	Role            AccountRole  `bun:"account_role,notnull" json:"account_role,omitempty"`
	AccessStatus    AccessStatus `bun:"access_status,notnull" json:"access_status,omitempty"`
	AccessGrantedAt *time.Time   `bun:"access_granted_at,nullzero" json:"access_granted_at,omitempty"`
	AccessGrantedBy *uuid.UUID   `bun:"access_granted_by,nullzero,type:uuid" json:"access_granted_by,omitempty"`
	AccessRevokedAt *time.Time   `bun:"access_revoked_at,nullzero" json:"access_revoked_at,omitempty"`
	AccessRevokedBy *uuid.UUID   `bun:"access_revoked_by,nullzero,type:uuid" json:"access_revoked_by,omitempty"`
	GrantedBy       *Account     `bun:"rel:belongs-to,join:access_granted_by=id" json:"granted_by,omitempty"`
	RevokedBy       *Account     `bun:"rel:belongs-to,join:access_revoked_by=id" json:"revoked_by,omitempty"`
	CreatedAt       *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time   `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt       *time.Time   `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus normalizes a zero-value status to pending.
func (a *Account) EnsureStatus() {
	if a.AccessStatus == "" {
		a.AccessStatus = AccessPending
	}
}

// CanAccess reports whether the account clears the authorization gate.
func (a *Account) CanAccess() bool {
	return a != nil && a.AccessStatus == AccessGranted
}

// IsAdmin reports whether the account holds the admin role.
func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// Sanitized returns a copy safe to hand back to transport layers: the
// credential hash is stripped, relations are preserved.
func (a *Account) Sanitized() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.PasswordHash = ""
	return &clone
}

// AccessSnapshot is the status + provenance view exposed by GET status and
// returned from state machine transitions.
type AccessSnapshot struct {
	Status    AccessStatus `json:"status"`
	GrantedAt *time.Time   `json:"granted_at,omitempty"`
	GrantedBy *uuid.UUID   `json:"granted_by,omitempty"`
	RevokedAt *time.Time   `json:"revoked_at,omitempty"`
	RevokedBy *uuid.UUID   `json:"revoked_by,omitempty"`
}

// Snapshot captures the account's current access state.
func (a *Account) Snapshot() AccessSnapshot {
	a.EnsureStatus()
	return AccessSnapshot{
		Status:    a.AccessStatus,
		GrantedAt: a.AccessGrantedAt,
		GrantedBy: a.AccessGrantedBy,
		RevokedAt: a.AccessRevokedAt,
		RevokedBy: a.AccessRevokedBy,
	}
}

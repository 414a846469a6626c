package gatekeeper

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

// SessionObject is the verified view of a bearer token. It intentionally
// carries no role or status; those are always re-derived from the store.
type SessionObject struct {
	AccountID      string     `json:"account_id,omitempty"`
	Issuer         string     `json:"issuer,omitempty"`
	IssuedAt       *time.Time `json:"issued_at,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

func (s *SessionObject) GetAccountID() string {
	return s.AccountID
}

func (s *SessionObject) GetAccountUUID() (uuid.UUID, error) {
	return uuid.Parse(s.AccountID)
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetExpiration() *time.Time {
	return s.ExpirationDate
}

func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"account=%s iss=%s iat=%s",
		s.AccountID,
		s.Issuer,
		issuedAt,
	)
}

// sessionFromClaims creates a SessionObject from validated claims.
func sessionFromClaims(claims *SessionClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrTokenMalformed
	}

	issuedAt := claims.Issued()
	expiresAt := claims.Expires()

	return &SessionObject{
		AccountID:      claims.AccountID(),
		Issuer:         claims.RegisteredClaims.Issuer,
		IssuedAt:       &issuedAt,
		ExpirationDate: &expiresAt,
	}, nil
}

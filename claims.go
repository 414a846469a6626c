package gatekeeper

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the deliberately thin token payload: an account
// identifier and the registered time bounds, nothing else. Role and access
// status never ride inside the token; the gate re-reads both from the store
// on every request, so a revoke is effective immediately.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID string `json:"uid,omitempty"`
}

// AccountID returns the account identifier carried by the token.
func (c *SessionClaims) AccountID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// Expires returns the expiration time or zero value.
func (c *SessionClaims) Expires() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// Issued returns the issued-at time or zero value.
func (c *SessionClaims) Issued() time.Time {
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// ensureTokenID stamps a unique jti so individual tokens are identifiable in
// logs without decoding the rest of the payload.
func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}

package gatekeeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Session holds the attributes of a verified bearer token. It deliberately
// exposes no role or access status; both are re-derived from the store on
// every request.
type Session interface {
	GetAccountID() string
	GetAccountUUID() (uuid.UUID, error)
	GetIssuer() string
	GetIssuedAt() *time.Time
	GetExpiration() *time.Time
}

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	Login(ctx context.Context, email, password string, meta RequestMeta) (string, *Account, error)
	SessionFromToken(token string) (Session, error)
	IdentityFromSession(ctx context.Context, session Session) (*Account, error)
}

// Config holds gatekeeper options
type Config interface {
	GetSigningKey() string
	GetTokenTTL() time.Duration
	GetIssuer() string
	GetAudience() []string
	GetContextKey() string
	GetAuthScheme() string
	GetAdminRegistrationCode() string
	GetCORSOrigin() string
}

// CredentialVerifier abstracts the one-way password check so tests can swap
// the bcrypt implementation out.
type CredentialVerifier interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] GATE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] GATE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] GATE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] GATE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

package gatekeeper

import (
	"context"

	"github.com/goliatone/go-router"
)

var accountCtxKey = &contextKey{"account"}
var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithContext sets the Account in the given context
func WithContext(r context.Context, account *Account) context.Context {
	return context.WithValue(r, accountCtxKey, account)
}

// FromContext finds the account from the context.
func FromContext(ctx context.Context) (*Account, bool) {
	raw, ok := ctx.Value(accountCtxKey).(*Account)
	return raw, ok
}

// WithSessionContext sets the Session in the given context
func WithSessionContext(r context.Context, session Session) context.Context {
	return context.WithValue(r, sessionCtxKey, session)
}

// SessionFromContext extracts the Session from the standard context
func SessionFromContext(ctx context.Context) (Session, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(Session)
	return raw, ok
}

// AccountFromRouter extracts the verified Account stored by the gate in the
// router context locals.
func AccountFromRouter(ctx router.Context, key string) (*Account, bool) {
	if key == "" {
		key = "account"
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	account, ok := raw.(*Account)
	return account, ok
}

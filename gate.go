package gatekeeper

import (
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// Gate is the per-request authorization check. It validates the bearer
// token, then re-reads the account from the store before every protected
// handler runs. The token only proves identity; whether the request is
// allowed depends on the access status at the moment the request arrives,
// so a revoke takes effect on the very next request, unexpired tokens
// included.
type Gate struct {
	auth         Authenticator
	cfg          Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

// NewGate builds a Gate around the given authenticator.
func NewGate(auther Authenticator, cfg Config) *Gate {
	g := &Gate{
		auth:   auther,
		cfg:    cfg,
		Logger: defLogger{},
	}

	g.ErrorHandler = g.defaultErrHandler

	return g
}

func (g *Gate) WithLogger(logger Logger) *Gate {
	if logger != nil {
		g.Logger = logger
	}
	return g
}

// Protected returns the middleware for routes that require a granted
// account. The verified, sanitized account is stored in the router locals
// under the configured context key and in the request context.
func (g *Gate) Protected() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			account, err := g.resolve(c)
			if err != nil {
				return g.ErrorHandler(c, err)
			}

			c.Locals(g.contextKey(), account)
			c.SetContext(WithContext(c.Context(), account))

			return next(c)
		}
	}
}

// AdminOnly layers a role check on top of Protected. It assumes Protected
// already ran and rejects non-admin accounts.
func (g *Gate) AdminOnly() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			account, ok := AccountFromRouter(c, g.contextKey())
			if !ok {
				return g.ErrorHandler(c, ErrUnableToFindSession)
			}

			if !account.IsAdmin() {
				g.Logger.Info(
					"admin route rejected",
					"account_id", account.ID.String(),
					"role", string(account.Role),
					"path", c.OriginalURL(),
				)
				return g.ErrorHandler(c, ErrAdminRequired)
			}

			return next(c)
		}
	}
}

// resolve extracts and validates the token, then performs the live status
// check against the store.
func (g *Gate) resolve(c router.Context) (*Account, error) {
	raw := g.tokenFromRequest(c)
	if raw == "" {
		return nil, ErrUnableToFindSession
	}

	session, err := g.auth.SessionFromToken(raw)
	if err != nil {
		return nil, err
	}

	account, err := g.auth.IdentityFromSession(c.Context(), session)
	if err != nil {
		if goerrors.IsNotFound(err) {
			// Account deleted after the token was minted.
			return nil, ErrUnableToFindSession
		}
		return nil, err
	}

	account.EnsureStatus()

	switch account.AccessStatus {
	case AccessPending:
		return nil, ErrAccessPending
	case AccessRevoked:
		return nil, ErrAccessRevoked
	}

	return account.Sanitized(), nil
}

// tokenFromRequest checks the session cookie first, then the
// Authorization header using the configured auth scheme.
func (g *Gate) tokenFromRequest(c router.Context) string {
	if cookie := c.Cookies(g.contextKey()); cookie != "" {
		return cookie
	}

	header := c.Header(router.HeaderAuthorization)
	if header == "" {
		return ""
	}

	scheme := g.cfg.GetAuthScheme()
	if scheme == "" {
		scheme = "Bearer"
	}

	if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
		return strings.TrimSpace(header[len(scheme):])
	}

	return ""
}

// SetCookieToken stores the session token in an HTTP only cookie.
func (g *Gate) SetCookieToken(c router.Context, token string) {
	duration := g.cfg.GetTokenTTL()
	if duration <= 0 {
		duration = 24 * time.Hour
	}

	c.Cookie(&router.Cookie{
		Name:     g.contextKey(),
		Value:    token,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// ClearCookieToken expires the session cookie.
func (g *Gate) ClearCookieToken(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     g.contextKey(),
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *Gate) contextKey() string {
	if key := g.cfg.GetContextKey(); key != "" {
		return key
	}
	return "account"
}

func (g *Gate) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "An unexpected authentication error").
			WithCode(goerrors.CodeUnauthorized)
	}

	g.Logger.Info(
		"gate rejected request",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	status := richErr.Code
	if status == 0 {
		status = router.StatusUnauthorized
	}

	return c.JSON(status, router.ViewContext{
		"success":   false,
		"message":   richErr.Message,
		"text_code": richErr.TextCode,
	})
}

package gatekeeper

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeAccessPending      = "ACCESS_PENDING"
	textCodeAccessRevoked      = "ACCESS_REVOKED"
	textCodeForbiddenTarget    = "FORBIDDEN_TARGET"
	textCodeSelfActionDenied   = "SELF_ACTION_DENIED"
	textCodeNoOpTransition     = "NOOP_TRANSITION"
	textCodeInvalidTransition  = "INVALID_ACCESS_TRANSITION"
	textCodeTransitionConflict = "ACCESS_TRANSITION_CONFLICT"
	textCodeAuditImmutable     = "AUDIT_RECORD_IMMUTABLE"
	textCodeTokenExpired       = "TOKEN_EXPIRED"
	textCodeTokenMalformed     = "TOKEN_MALFORMED"
	textCodeMissingSession     = "MISSING_SESSION"
	textCodeAdminRequired      = "ADMIN_REQUIRED"
	textCodeInvalidAdminCode   = "INVALID_ADMIN_CODE"
)

// ErrInvalidCredentials is returned for unknown emails and password
// mismatches alike, so login never reveals account existence.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccessPending blocks accounts still awaiting admin approval.
var ErrAccessPending = goerrors.New("access pending: awaiting admin approval", goerrors.CategoryAuth).
	WithTextCode(textCodeAccessPending).
	WithCode(goerrors.CodeForbidden)

// ErrAccessRevoked blocks accounts whose access an admin has revoked.
var ErrAccessRevoked = goerrors.New("access has been revoked, contact an administrator", goerrors.CategoryAuth).
	WithTextCode(textCodeAccessRevoked).
	WithCode(goerrors.CodeForbidden)

// ErrForbiddenTarget is returned when a transition targets an admin account.
var ErrForbiddenTarget = goerrors.New("cannot modify access status of admin accounts", goerrors.CategoryValidation).
	WithTextCode(textCodeForbiddenTarget).
	WithCode(goerrors.CodeBadRequest)

// ErrSelfActionDenied is returned when an admin revokes their own access.
var ErrSelfActionDenied = goerrors.New("cannot revoke your own access", goerrors.CategoryValidation).
	WithTextCode(textCodeSelfActionDenied).
	WithCode(goerrors.CodeBadRequest)

// ErrNoOpTransition is returned for redundant grants and revokes. Safe to
// surface: the caller's intent already holds, nothing was written.
var ErrNoOpTransition = goerrors.New("account is already in the requested access state", goerrors.CategoryValidation).
	WithTextCode(textCodeNoOpTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidTransition is returned when a requested status change is not in
// the transition table (e.g. revoking a pending account).
var ErrInvalidTransition = goerrors.New("invalid access state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrTransitionConflict is returned when a concurrent transition won the
// race; callers should refetch the account and retry.
var ErrTransitionConflict = goerrors.New("access status changed concurrently", goerrors.CategoryConflict).
	WithTextCode(textCodeTransitionConflict).
	WithCode(goerrors.CodeConflict)

// ErrAuditImmutable is returned for any attempt to mutate or delete a
// persisted audit record.
var ErrAuditImmutable = goerrors.New("audit records cannot be modified after creation", goerrors.CategoryValidation).
	WithTextCode(textCodeAuditImmutable).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is the rich error for expired session tokens.
var ErrTokenExpired = goerrors.New("session token is expired", goerrors.CategoryAuth).
	WithTextCode(textCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is the rich error for tokens that fail validation for
// any reason other than expiry.
var ErrTokenMalformed = goerrors.New("session token is invalid", goerrors.CategoryAuth).
	WithTextCode(textCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToFindSession is returned when a request carries no token in
// either the cookie or the authorization header.
var ErrUnableToFindSession = goerrors.New("unauthorized: no token provided", goerrors.CategoryAuth).
	WithTextCode(textCodeMissingSession).
	WithCode(goerrors.CodeUnauthorized)

// ErrAdminRequired rejects non-admin identities on admin routes.
var ErrAdminRequired = goerrors.New("forbidden: this action requires admin role", goerrors.CategoryAuth).
	WithTextCode(textCodeAdminRequired).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidAdminCode rejects privileged registration with a bad shared code.
var ErrInvalidAdminCode = goerrors.New("invalid admin code", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidAdminCode).
	WithCode(goerrors.CodeForbidden)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryBadInput).
	WithTextCode("EMPTY_PASSWORD").
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the bcrypt mismatch sentinel.
var ErrMismatchedHashAndPassword = goerrors.New("credentials do not match", goerrors.CategoryAuth).
	WithTextCode("CREDENTIAL_MISMATCH").
	WithCode(goerrors.CodeUnauthorized)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) || hasTextCode(err, textCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenMalformed) || hasTextCode(err, textCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

func hasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == textCode
	}
	return false
}

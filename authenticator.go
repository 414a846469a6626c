package gatekeeper

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// Auther implements the login sequencing contract: verify the credential,
// check the live access status, and only then issue a token. Every denied
// attempt writes its audit record before the error is returned, so audit
// coverage never depends on success.
type Auther struct {
	repo         RepositoryManager
	verifier     CredentialVerifier
	tokenService TokenService
	logger       Logger
}

// NewAuthenticator returns a new Auther
func NewAuthenticator(repo RepositoryManager, cfg Config) *Auther {
	tokenService := NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetTokenTTL(),
		cfg.GetIssuer(),
		cfg.GetAudience(),
		defLogger{},
	)

	return &Auther{
		repo:         repo,
		verifier:     DefaultCredentialVerifier(),
		tokenService: tokenService,
		logger:       defLogger{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithCredentialVerifier swaps the bcrypt verifier (used in tests).
func (s *Auther) WithCredentialVerifier(verifier CredentialVerifier) *Auther {
	if verifier != nil {
		s.verifier = verifier
	}
	return s
}

// WithTokenService overrides the token service built from config.
func (s *Auther) WithTokenService(ts TokenService) *Auther {
	if ts != nil {
		s.tokenService = ts
	}
	return s
}

// TokenService returns the TokenService instance used by this Auther
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login runs the full orchestration for (email, password). The returned
// account has its credential hash stripped.
func (s *Auther) Login(ctx context.Context, email, password string, meta RequestMeta) (string, *Account, error) {
	account, err := s.repo.Accounts().GetByIdentifier(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			// No audit target exists; do not reveal account existence.
			return "", nil, ErrInvalidCredentials
		}
		s.logger.Error("Login account lookup error", "error", err)
		return "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account during login")
	}

	if err := s.verifier.ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		if auditErr := s.appendLoginAudit(ctx, account, AuditActionLoginFailed, meta, map[string]any{
			"reason": "invalid password",
		}); auditErr != nil {
			return "", nil, auditErr
		}
		return "", nil, ErrInvalidCredentials
	}

	account.EnsureStatus()

	switch account.AccessStatus {
	case AccessPending:
		if auditErr := s.appendLoginAudit(ctx, account, AuditActionAccessDenied, meta, map[string]any{
			"reason": "access pending admin approval",
		}); auditErr != nil {
			return "", nil, auditErr
		}
		return "", nil, ErrAccessPending
	case AccessRevoked:
		if auditErr := s.appendLoginAudit(ctx, account, AuditActionAccessDenied, meta, map[string]any{
			"reason": "access has been revoked",
		}); auditErr != nil {
			return "", nil, auditErr
		}
		return "", nil, ErrAccessRevoked
	}

	if auditErr := s.appendLoginAudit(ctx, account, AuditActionLoginSuccess, meta, nil); auditErr != nil {
		return "", nil, auditErr
	}

	token, err := s.tokenService.Generate(account.ID.String())
	if err != nil {
		s.logger.Error("Login token generation error", "error", err)
		return "", nil, err
	}

	return token, account.Sanitized(), nil
}

// SessionFromToken validates a raw token and returns the session view.
func (s *Auther) SessionFromToken(raw string) (Session, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		return nil, err
	}

	return sessionFromClaims(claims)
}

// IdentityFromSession resolves the live account behind a session. Callers
// own the status check; this is a plain lookup.
func (s *Auther) IdentityFromSession(ctx context.Context, session Session) (*Account, error) {
	account, err := s.repo.Accounts().GetByIdentifier(ctx, session.GetAccountID())
	if err != nil {
		s.logger.Error("IdentityFromSession lookup error", "error", err)
		return nil, err
	}

	return account, nil
}

// appendLoginAudit writes a self-initiated login event. Failures abort the
// login: a denied attempt with no trail must not be answered.
func (s *Auther) appendLoginAudit(ctx context.Context, account *Account, action AuditAction, meta RequestMeta, metadata map[string]any) error {
	record := &AuditRecord{
		AccountID: account.ID,
		Action:    action,
		Metadata:  metadata,
	}
	meta.Apply(record)

	if _, err := s.repo.AuditTrail().Append(ctx, record); err != nil {
		s.logger.Error("login audit append failed", "action", string(action), "error", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record login event")
	}

	return nil
}

var _ Authenticator = (*Auther)(nil)

package gatekeeper

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// RegisterAccountMessage is the self-service registration request. Accounts
// created through it always start pending, whatever the caller sends.
type RegisterAccountMessage struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	PhoneRegion string `json:"phone_region"`
	Password    string `json:"password"`
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

type RegisterAccountHandler struct {
	repo RepositoryManager
}

func NewRegisterAccountHandler(repo RepositoryManager) *RegisterAccountHandler {
	return &RegisterAccountHandler{repo: repo}
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) (*Account, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) (*Account, error) {
	account := &Account{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		account.PasswordHash = hash
		account.Name = event.Name
		account.Email = normalizeEmail(event.Email)
		account.Phone = normalizePhone(event.Phone, event.PhoneRegion)
		account.Role = RoleUser
		account.AccessStatus = AccessPending

		if account, err = h.repo.Accounts().RegisterTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}

		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	return account.Sanitized(), nil
}

// RegisterAdminMessage bootstraps an administrator. The registration code
// gates the operation; a valid code yields an account that is granted from
// the start, stamped by itself since no prior admin exists to approve it.
type RegisterAdminMessage struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	PhoneRegion      string `json:"phone_region"`
	Password         string `json:"password"`
	RegistrationCode string `json:"registration_code"`
}

func (e RegisterAdminMessage) Type() string { return "account.register.admin" }

type RegisterAdminHandler struct {
	repo RepositoryManager
	cfg  Config
	now  func() time.Time
}

func NewRegisterAdminHandler(repo RepositoryManager, cfg Config) *RegisterAdminHandler {
	return &RegisterAdminHandler{
		repo: repo,
		cfg:  cfg,
		now:  time.Now,
	}
}

func (h *RegisterAdminHandler) Execute(ctx context.Context, event RegisterAdminMessage) (*Account, error) {
	expected := h.cfg.GetAdminRegistrationCode()
	if expected == "" || event.RegistrationCode != expected {
		return nil, ErrInvalidAdminCode
	}

	account := &Account{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		now := h.now()

		account.PasswordHash = hash
		account.Name = event.Name
		account.Email = normalizeEmail(event.Email)
		account.Phone = normalizePhone(event.Phone, event.PhoneRegion)
		account.Role = RoleAdmin
		account.AccessStatus = AccessGranted
		account.AccessGrantedAt = &now

		if account, err = h.repo.Accounts().RegisterTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create admin account")
		}

		// Self-granted; there is no earlier admin to attribute this to.
		account.AccessGrantedBy = &account.ID

		if _, err := h.repo.Accounts().UpdateTx(ctx, tx, account, repository.UpdateByID(account.ID.String())); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not stamp admin grant provenance")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}

		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "admin registration transaction failed")
	}

	return account.Sanitized(), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizePhone stores numbers in E.164 when they parse; otherwise the raw
// input is kept, phone is informational only.
func normalizePhone(phone, region string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}

	if region == "" {
		region = "US"
	}

	num, err := phonenumbers.Parse(phone, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return phone
	}

	return phonenumbers.Format(num, phonenumbers.E164)
}

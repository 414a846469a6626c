package gatekeeper

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RegisterAccountRoutes mounts the public account endpoints plus the
// session-bound ones behind the gate.
func RegisterAccountRoutes[T any](app router.Router[T], gate *Gate, opts ...AccountControllerOption) {
	controller := NewAccountController(gate, opts...)

	app.Post(controller.Routes.Register, controller.Register).
		SetName("account.register")
	app.Post(controller.Routes.RegisterAdmin, controller.RegisterAdmin).
		SetName("account.register-admin")
	app.Post(controller.Routes.Login, controller.Login).
		SetName("account.login")
	app.Post(controller.Routes.Logout, controller.Logout).
		SetName("account.logout")

	app.Get(controller.Routes.Me, gate.Protected()(controller.Me)).
		SetName("account.me")
	app.Get(controller.Routes.Status, gate.Protected()(controller.Status)).
		SetName("account.status")
}

type AccountControllerRoutes struct {
	Register      string
	RegisterAdmin string
	Login         string
	Logout        string
	Me            string
	Status        string
}

type AccountController struct {
	Logger       Logger
	Repo         RepositoryManager
	Auther       Authenticator
	Gate         *Gate
	Config       Config
	Routes       *AccountControllerRoutes
	ErrorHandler func(c router.Context, err error) error
}

type AccountControllerOption func(*AccountController) *AccountController

func WithAccountControllerLogger(logger Logger) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithAccountControllerRepo(repo RepositoryManager) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Repo = repo
		return c
	}
}

func WithAccountControllerAuther(auther Authenticator) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Auther = auther
		return c
	}
}

func WithAccountControllerConfig(cfg Config) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Config = cfg
		return c
	}
}

func NewAccountController(gate *Gate, opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		Logger: defLogger{},
		Gate:   gate,
		Routes: &AccountControllerRoutes{
			Register:      "/auth/register",
			RegisterAdmin: "/auth/register-admin",
			Login:         "/auth/login",
			Logout:        "/auth/logout",
			Me:            "/auth/me",
			Status:        "/auth/status",
		},
	}

	c.ErrorHandler = c.defaultErrHandler

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in account controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in account controller...")
	}

	if c.Config == nil {
		panic("Missing Config in account controller...")
	}

	return c
}

// RegisterRequest payload
type RegisterRequest struct {
	Name            string `form:"name" json:"name"`
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone" json:"phone"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// Register creates a pending account. The response tells the caller the
// account exists but cannot log in until an admin grants access.
func (a *AccountController) Register(ctx router.Context) error {
	payload := new(RegisterRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "Error parsing body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	handler := NewRegisterAccountHandler(a.Repo)
	account, err := handler.Execute(ctx.Context(), RegisterAccountMessage{
		Name:     payload.Name,
		Email:    payload.Email,
		Phone:    payload.Phone,
		Password: payload.Password,
	})
	if err != nil {
		a.Logger.Error("register account error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, router.ViewContext{
		"success": true,
		"message": "Registration received. An administrator must grant access before you can sign in.",
		"account": account,
	})
}

// RegisterAdminRequest payload
type RegisterAdminRequest struct {
	Name             string `form:"name" json:"name"`
	Email            string `form:"email" json:"email"`
	Phone            string `form:"phone" json:"phone"`
	Password         string `form:"password" json:"password"`
	RegistrationCode string `form:"registration_code" json:"registration_code"`
}

// Validate will run validation rules
func (r RegisterAdminRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(&r.RegistrationCode, validation.Required),
	)
}

func (a *AccountController) RegisterAdmin(ctx router.Context) error {
	payload := new(RegisterAdminRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register admin parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "Error parsing body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	handler := NewRegisterAdminHandler(a.Repo, a.Config)
	account, err := handler.Execute(ctx.Context(), RegisterAdminMessage{
		Name:             payload.Name,
		Email:            payload.Email,
		Phone:            payload.Phone,
		Password:         payload.Password,
		RegistrationCode: payload.RegistrationCode,
	})
	if err != nil {
		a.Logger.Error("register admin error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, router.ViewContext{
		"success": true,
		"message": "Administrator account created",
		"account": account,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AccountController) Login(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "Error parsing body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	meta := requestMetaFromContext(ctx)

	token, account, err := a.Auther.Login(ctx.Context(), payload.Email, payload.Password, meta)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.Gate.SetCookieToken(ctx, token)

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success": true,
		"token":   token,
		"account": account,
	})
}

func (a *AccountController) Logout(ctx router.Context) error {
	a.Gate.ClearCookieToken(ctx)
	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success": true,
		"message": "Logged out",
	})
}

// Me returns the verified account behind the current session.
func (a *AccountController) Me(ctx router.Context) error {
	account, ok := AccountFromRouter(ctx, a.Config.GetContextKey())
	if !ok {
		return a.ErrorHandler(ctx, ErrUnableToFindSession)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success": true,
		"account": account,
	})
}

// Status returns the access snapshot for the current session. The gate only
// lets granted accounts through, so this reports the live stamps.
func (a *AccountController) Status(ctx router.Context) error {
	account, ok := AccountFromRouter(ctx, a.Config.GetContextKey())
	if !ok {
		return a.ErrorHandler(ctx, ErrUnableToFindSession)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success": true,
		"access":  account.Snapshot(),
	})
}

func (a *AccountController) validationError(ctx router.Context, err error) error {
	a.Logger.Error("payload validation failed", "error", err)
	return ctx.JSON(router.StatusBadRequest, router.ViewContext{
		"success":    false,
		"message":    "Error validating payload",
		"validation": FormatValidationErrorToMap(err),
	})
}

func (a *AccountController) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = router.StatusInternalServerError
	}

	if len(richErr.Metadata) > 0 {
		a.Logger.Error("account controller error",
			"message", richErr.Message,
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
	}

	return c.JSON(status, router.ViewContext{
		"success":   false,
		"message":   richErr.Message,
		"text_code": richErr.TextCode,
	})
}

// requestMetaFromContext captures client attribution for audit records.
func requestMetaFromContext(ctx router.Context) RequestMeta {
	return RequestMeta{
		IPAddress: ctx.IP(),
		UserAgent: ctx.Header("User-Agent"),
	}
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field/message map suitable for a JSON response.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	if err != nil {
		out["payload"] = err.Error()
	}

	return out
}

package gatekeeper

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RegisterAdminRoutes mounts the access management endpoints. Every route
// is wrapped by the gate plus the admin role check.
func RegisterAdminRoutes[T any](app router.Router[T], gate *Gate, opts ...AdminControllerOption) {
	controller := NewAdminController(gate, opts...)

	guard := func(h router.HandlerFunc) router.HandlerFunc {
		return gate.Protected()(gate.AdminOnly()(h))
	}

	app.Get(controller.Routes.Users, guard(controller.ListAccounts)).
		SetName("admin.accounts.list")
	app.Get(controller.Routes.Users+"/:id", guard(controller.ShowAccount)).
		SetName("admin.accounts.show")
	app.Post(controller.Routes.Users+"/:id/grant", guard(controller.GrantAccess)).
		SetName("admin.accounts.grant")
	app.Post(controller.Routes.Users+"/:id/revoke", guard(controller.RevokeAccess)).
		SetName("admin.accounts.revoke")
	app.Get(controller.Routes.Audit, guard(controller.AccessHistory)).
		SetName("admin.audit.search")
	app.Get(controller.Routes.Users+"/:id/audit", guard(controller.AccountAccessHistory)).
		SetName("admin.audit.account")
}

type AdminControllerRoutes struct {
	Users string
	Audit string
}

type AdminController struct {
	Logger       Logger
	Repo         RepositoryManager
	Gate         *Gate
	Config       Config
	StateMachine AccessStateMachine
	Routes       *AdminControllerRoutes
	ErrorHandler func(c router.Context, err error) error
}

type AdminControllerOption func(*AdminController) *AdminController

func WithAdminControllerLogger(logger Logger) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithAdminControllerRepo(repo RepositoryManager) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		c.Repo = repo
		return c
	}
}

func WithAdminControllerConfig(cfg Config) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		c.Config = cfg
		return c
	}
}

func WithAdminControllerStateMachine(sm AccessStateMachine) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		c.StateMachine = sm
		return c
	}
}

func NewAdminController(gate *Gate, opts ...AdminControllerOption) *AdminController {
	c := &AdminController{
		Logger: defLogger{},
		Gate:   gate,
		Routes: &AdminControllerRoutes{
			Users: "/admin/users",
			Audit: "/admin/audit",
		},
	}

	c.ErrorHandler = c.defaultErrHandler

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in admin controller...")
	}

	if c.Config == nil {
		panic("Missing Config in admin controller...")
	}

	if c.StateMachine == nil {
		c.StateMachine = NewAccessStateMachine(c.Repo, WithStateMachineLogger(c.Logger))
	}

	return c
}

// ListAccounts returns every account with grant/revoke provenance expanded.
func (a *AdminController) ListAccounts(ctx router.Context) error {
	records, err := a.Repo.Accounts().ListWithProvenance(ctx.Context())
	if err != nil {
		a.Logger.Error("admin list accounts error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	for i, record := range records {
		records[i] = record.Sanitized()
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success":  true,
		"accounts": records,
		"count":    len(records),
	})
}

func (a *AdminController) ShowAccount(ctx router.Context) error {
	id, err := a.accountIDParam(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	record, err := a.Repo.Accounts().GetWithProvenance(ctx.Context(), id)
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			return a.ErrorHandler(ctx, goerrors.New("Account not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithTextCode("ACCOUNT_NOT_FOUND"))
		}
		a.Logger.Error("admin show account error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success": true,
		"account": record.Sanitized(),
	})
}

// AccessActionRequest carries the optional reason for a grant or revoke.
type AccessActionRequest struct {
	Reason string `form:"reason" json:"reason"`
}

// Validate will run validation rules
func (r AccessActionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Reason, validation.Length(0, 500)),
	)
}

func (a *AdminController) GrantAccess(ctx router.Context) error {
	return a.runTransition(ctx, a.StateMachine.Grant)
}

func (a *AdminController) RevokeAccess(ctx router.Context) error {
	return a.runTransition(ctx, a.StateMachine.Revoke)
}

// runTransition resolves the acting admin and the target account, then runs
// the transition with attribution and the optional reason.
func (a *AdminController) runTransition(
	ctx router.Context,
	apply func(c context.Context, actor ActorRef, target *Account, opts ...TransitionOption) (*Account, error),
) error {
	actor, ok := AccountFromRouter(ctx, a.Config.GetContextKey())
	if !ok {
		return a.ErrorHandler(ctx, ErrUnableToFindSession)
	}

	id, err := a.accountIDParam(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(AccessActionRequest)
	if body := ctx.Body(); len(body) > 0 {
		if err := ctx.Bind(payload); err != nil {
			return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "Error parsing body").
				WithCode(goerrors.CodeBadRequest))
		}
		if err := payload.Validate(); err != nil {
			return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "Error validating payload").
				WithCode(goerrors.CodeBadRequest))
		}
	}

	target, err := a.Repo.Accounts().GetByID(ctx.Context(), id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			return a.ErrorHandler(ctx, goerrors.New("Account not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithTextCode("ACCOUNT_NOT_FOUND"))
		}
		a.Logger.Error("admin transition target lookup error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	opts := []TransitionOption{
		WithRequestMeta(requestMetaFromContext(ctx)),
	}
	if payload.Reason != "" {
		opts = append(opts, WithTransitionReason(payload.Reason))
	}

	updated, err := apply(ctx.Context(), ActorRef{ID: actor.ID, Type: string(actor.Role)}, target, opts...)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success": true,
		"account": updated.Sanitized(),
		"access":  updated.Snapshot(),
	})
}

// AccessHistory searches the audit trail with optional filters:
// account_id, action, start_date, end_date, limit, page.
func (a *AdminController) AccessHistory(ctx router.Context) error {
	query := AuditQuery{
		Limit: ctx.QueryInt("limit", 0),
		Page:  ctx.QueryInt("page", 0),
	}

	if raw := ctx.Query("account_id", ""); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return a.ErrorHandler(ctx, goerrors.New("Invalid account_id filter", goerrors.CategoryBadInput).
				WithCode(goerrors.CodeBadRequest))
		}
		query.AccountID = &id
	}

	if raw := ctx.Query("action", ""); raw != "" {
		action := AuditAction(raw)
		if !action.IsValid() {
			return a.ErrorHandler(ctx, goerrors.New("Invalid action filter", goerrors.CategoryBadInput).
				WithCode(goerrors.CodeBadRequest))
		}
		query.Action = action
	}

	if raw := ctx.Query("start_date", ""); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return a.ErrorHandler(ctx, goerrors.New("Invalid start_date filter, expected RFC3339", goerrors.CategoryBadInput).
				WithCode(goerrors.CodeBadRequest))
		}
		query.StartDate = &t
	}

	if raw := ctx.Query("end_date", ""); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return a.ErrorHandler(ctx, goerrors.New("Invalid end_date filter, expected RFC3339", goerrors.CategoryBadInput).
				WithCode(goerrors.CodeBadRequest))
		}
		query.EndDate = &t
	}

	page, err := a.Repo.AuditTrail().Search(ctx.Context(), query)
	if err != nil {
		a.Logger.Error("admin audit search error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success": true,
		"records": page.Records,
		"count":   page.Count,
		"total":   page.Total,
		"page":    page.Page,
		"pages":   page.Pages,
	})
}

// AccountAccessHistory returns the full trail for one account, newest first.
func (a *AdminController) AccountAccessHistory(ctx router.Context) error {
	id, err := a.accountIDParam(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	records, err := a.Repo.AuditTrail().HistoryFor(ctx.Context(), id)
	if err != nil {
		a.Logger.Error("admin account audit error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success": true,
		"records": records,
		"count":   len(records),
	})
}

func (a *AdminController) accountIDParam(ctx router.Context) (uuid.UUID, error) {
	raw := ctx.Param("id", "")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, goerrors.New("Invalid account id", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{
				"id": raw,
			})
	}
	return id, nil
}

func (a *AdminController) defaultErrHandler(c router.Context, err error) error {
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
		a.Logger.Error("admin controller error",
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

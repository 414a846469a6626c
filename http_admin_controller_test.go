package gatekeeper_test

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	gatekeeper "github.com/goliatone/go-gatekeeper"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAdminFixture(accounts *MockAccounts, trail *RecordingTrail) *gatekeeper.AdminController {
	repo := &TestRepositoryManager{AccountsRepo: accounts, Trail: trail}
	cfg := newTestConfig()
	auther := gatekeeper.NewAuthenticator(repo, cfg).
		WithCredentialVerifier(fakeVerifier{})
	gate := gatekeeper.NewGate(auther, cfg)

	return gatekeeper.NewAdminController(gate,
		gatekeeper.WithAdminControllerRepo(repo),
		gatekeeper.WithAdminControllerConfig(cfg),
	)
}

func adminAccount() *gatekeeper.Account {
	return &gatekeeper.Account{
		ID:           uuid.New(),
		Name:         "Admin",
		Email:        "admin@example.com",
		Role:         gatekeeper.RoleAdmin,
		AccessStatus: gatekeeper.AccessGranted,
	}
}

func TestAdminControllerGrantWritesPairedAudit(t *testing.T) {
	accounts := &MockAccounts{}
	trail := &RecordingTrail{}
	controller := newAdminFixture(accounts, trail)

	admin := adminAccount()
	target := grantedAccount("pending@example.com")
	target.AccessStatus = gatekeeper.AccessPending

	updated := &gatekeeper.Account{
		ID:           target.ID,
		Role:         gatekeeper.RoleUser,
		AccessStatus: gatekeeper.AccessGranted,
	}

	accounts.On("GetByID", mock.Anything, target.ID.String()).
		Return(target, nil).Once()
	accounts.On("UpdateAccessStatusTx", mock.Anything, mock.Anything, target.ID, gatekeeper.AccessPending, mock.Anything).
		Return(updated, nil).Once()

	ctx := &MockContext{}
	ctx.On("Locals", "account").Return(admin)
	ctx.On("Param", "id", "").Return(target.ID.String())
	ctx.On("Body").Return([]byte{})
	ctx.On("Context").Return(context.Background())
	ctx.On("IP").Return("203.0.113.20")
	ctx.On("Header", "User-Agent").Return("admin-ui/2.0")
	ctx.On("JSON", router.StatusOK, jsonWithSuccess(true)).Return(nil).Once()

	require.NoError(t, controller.GrantAccess(ctx))

	require.Len(t, trail.Records, 1)
	record := trail.Records[0]
	assert.Equal(t, gatekeeper.AuditActionGranted, record.Action)
	require.NotNil(t, record.PerformedBy)
	assert.Equal(t, admin.ID, *record.PerformedBy)
	assert.Equal(t, "203.0.113.20", record.IPAddress)

	accounts.AssertExpectations(t)
	ctx.AssertExpectations(t)
}

func TestAdminControllerRevokeCarriesReason(t *testing.T) {
	accounts := &MockAccounts{}
	trail := &RecordingTrail{}
	controller := newAdminFixture(accounts, trail)

	admin := adminAccount()
	target := grantedAccount("member@example.com")

	updated := &gatekeeper.Account{
		ID:           target.ID,
		Role:         gatekeeper.RoleUser,
		AccessStatus: gatekeeper.AccessRevoked,
	}

	accounts.On("GetByID", mock.Anything, target.ID.String()).
		Return(target, nil).Once()
	accounts.On("UpdateAccessStatusTx", mock.Anything, mock.Anything, target.ID, gatekeeper.AccessGranted, mock.Anything).
		Return(updated, nil).Once()

	ctx := &MockContext{}
	ctx.On("Locals", "account").Return(admin)
	ctx.On("Param", "id", "").Return(target.ID.String())
	ctx.On("Body").Return([]byte(`{"reason":"contract ended"}`))
	ctx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*gatekeeper.AccessActionRequest)
		payload.Reason = "contract ended"
	}).Return(nil).Once()
	ctx.On("Context").Return(context.Background())
	ctx.On("IP").Return("203.0.113.20")
	ctx.On("Header", "User-Agent").Return("admin-ui/2.0")
	ctx.On("JSON", router.StatusOK, jsonWithSuccess(true)).Return(nil).Once()

	require.NoError(t, controller.RevokeAccess(ctx))

	require.Len(t, trail.Records, 1)
	assert.Equal(t, gatekeeper.AuditActionRevoked, trail.Records[0].Action)
	assert.Equal(t, "contract ended", trail.Records[0].Metadata["reason"])
}

func TestAdminControllerGrantConflictReturns409(t *testing.T) {
	accounts := &MockAccounts{}
	trail := &RecordingTrail{}
	controller := newAdminFixture(accounts, trail)

	admin := adminAccount()
	target := grantedAccount("contended@example.com")
	target.AccessStatus = gatekeeper.AccessPending

	accounts.On("GetByID", mock.Anything, target.ID.String()).
		Return(target, nil).Once()
	accounts.On("UpdateAccessStatusTx", mock.Anything, mock.Anything, target.ID, gatekeeper.AccessPending, mock.Anything).
		Return(nil, gatekeeper.ErrTransitionConflict).Once()

	ctx := &MockContext{}
	ctx.On("Locals", "account").Return(admin)
	ctx.On("Param", "id", "").Return(target.ID.String())
	ctx.On("Body").Return([]byte{})
	ctx.On("Context").Return(context.Background())
	ctx.On("IP").Return("203.0.113.20")
	ctx.On("Header", "User-Agent").Return("admin-ui/2.0")
	ctx.On("JSON", goerrors.CodeConflict, jsonWithTextCode("ACCESS_TRANSITION_CONFLICT")).Return(nil).Once()

	require.NoError(t, controller.GrantAccess(ctx))
	assert.Empty(t, trail.Records)
	ctx.AssertExpectations(t)
}

func TestAdminControllerRevokeSelfIsRejected(t *testing.T) {
	accounts := &MockAccounts{}
	trail := &RecordingTrail{}
	controller := newAdminFixture(accounts, trail)

	admin := adminAccount()
	// The target row has the user role so only the self check can reject it.
	target := grantedAccount("self@example.com")
	target.ID = admin.ID

	accounts.On("GetByID", mock.Anything, target.ID.String()).
		Return(target, nil).Once()

	ctx := &MockContext{}
	ctx.On("Locals", "account").Return(admin)
	ctx.On("Param", "id", "").Return(target.ID.String())
	ctx.On("Body").Return([]byte{})
	ctx.On("Context").Return(context.Background())
	ctx.On("IP").Return("203.0.113.20")
	ctx.On("Header", "User-Agent").Return("admin-ui/2.0")
	ctx.On("JSON", router.StatusBadRequest, jsonWithTextCode("SELF_ACTION_DENIED")).Return(nil).Once()

	require.NoError(t, controller.RevokeAccess(ctx))
	assert.Empty(t, trail.Records)
	accounts.AssertNotCalled(t, "UpdateAccessStatusTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAdminControllerShowAccountNotFound(t *testing.T) {
	accounts := &MockAccounts{}
	controller := newAdminFixture(accounts, &RecordingTrail{})

	missing := uuid.New()
	accounts.On("GetWithProvenance", mock.Anything, missing).
		Return(nil, repository.NewRecordNotFound()).Once()

	ctx := &MockContext{}
	ctx.On("Param", "id", "").Return(missing.String())
	ctx.On("Context").Return(context.Background())
	ctx.On("JSON", goerrors.CodeNotFound, jsonWithTextCode("ACCOUNT_NOT_FOUND")).Return(nil).Once()

	require.NoError(t, controller.ShowAccount(ctx))
	ctx.AssertExpectations(t)
}

func TestAdminControllerRejectsMalformedID(t *testing.T) {
	accounts := &MockAccounts{}
	controller := newAdminFixture(accounts, &RecordingTrail{})

	ctx := &MockContext{}
	ctx.On("Param", "id", "").Return("not-a-uuid")
	ctx.On("JSON", router.StatusBadRequest, jsonWithSuccess(false)).Return(nil).Once()

	require.NoError(t, controller.ShowAccount(ctx))
	accounts.AssertNotCalled(t, "GetWithProvenance", mock.Anything, mock.Anything)
}

func TestAdminControllerAccessHistoryFilters(t *testing.T) {
	accounts := &MockAccounts{}
	trail := &RecordingTrail{}
	controller := newAdminFixture(accounts, trail)

	accountID := uuid.New()
	trail.Records = []*gatekeeper.AuditRecord{
		{ID: uuid.New(), AccountID: accountID, Action: gatekeeper.AuditActionGranted},
	}

	ctx := &MockContext{}
	ctx.On("QueryInt", "limit", 0).Return(10)
	ctx.On("QueryInt", "page", 0).Return(1)
	ctx.On("Query", "account_id", "").Return(accountID.String())
	ctx.On("Query", "action", "").Return("granted")
	ctx.On("Query", "start_date", "").Return("")
	ctx.On("Query", "end_date", "").Return("")
	ctx.On("Context").Return(context.Background())
	ctx.On("JSON", router.StatusOK, jsonWithSuccess(true)).Return(nil).Once()

	require.NoError(t, controller.AccessHistory(ctx))
	ctx.AssertExpectations(t)
}

func TestAdminControllerAccessHistoryRejectsBadAction(t *testing.T) {
	accounts := &MockAccounts{}
	controller := newAdminFixture(accounts, &RecordingTrail{})

	ctx := &MockContext{}
	ctx.On("QueryInt", "limit", 0).Return(0)
	ctx.On("QueryInt", "page", 0).Return(0)
	ctx.On("Query", "account_id", "").Return("")
	ctx.On("Query", "action", "").Return("password_changed")
	ctx.On("JSON", router.StatusBadRequest, jsonWithSuccess(false)).Return(nil).Once()

	require.NoError(t, controller.AccessHistory(ctx))
	ctx.AssertExpectations(t)
}

func TestAdminControllerAccountAccessHistory(t *testing.T) {
	accounts := &MockAccounts{}
	trail := &RecordingTrail{}
	controller := newAdminFixture(accounts, trail)

	accountID := uuid.New()
	trail.Records = []*gatekeeper.AuditRecord{
		{ID: uuid.New(), AccountID: accountID, Action: gatekeeper.AuditActionRevoked},
		{ID: uuid.New(), AccountID: uuid.New(), Action: gatekeeper.AuditActionGranted},
	}

	ctx := &MockContext{}
	ctx.On("Param", "id", "").Return(accountID.String())
	ctx.On("Context").Return(context.Background())
	ctx.On("JSON", router.StatusOK, mock.MatchedBy(func(v any) bool {
		data, ok := v.(router.ViewContext)
		if !ok {
			return false
		}
		records, ok := data["records"].([]*gatekeeper.AuditRecord)
		return ok && len(records) == 1 && records[0].AccountID == accountID
	})).Return(nil).Once()

	require.NoError(t, controller.AccountAccessHistory(ctx))
	ctx.AssertExpectations(t)
}

package gatekeeper_test

import (
	"context"
	"database/sql"
	"io"
	"mime/multipart"
	"sync"
	"time"

	gatekeeper "github.com/goliatone/go-gatekeeper"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockAccounts stubs the credential store. The embedded interface covers the
// repository methods a given test never touches.
type MockAccounts struct {
	mock.Mock
	gatekeeper.Accounts
}

func (m *MockAccounts) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*gatekeeper.Account, error) {
	args := m.Called(ctx, identifier)
	if acc, ok := args.Get(0).(*gatekeeper.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*gatekeeper.Account, error) {
	args := m.Called(ctx, id)
	if acc, ok := args.Get(0).(*gatekeeper.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) RegisterTx(ctx context.Context, tx bun.IDB, account *gatekeeper.Account) (*gatekeeper.Account, error) {
	args := m.Called(ctx, tx, account)
	if acc, ok := args.Get(0).(*gatekeeper.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) UpdateTx(ctx context.Context, tx bun.IDB, record *gatekeeper.Account, criteria ...repository.UpdateCriteria) (*gatekeeper.Account, error) {
	args := m.Called(ctx, tx, record)
	if acc, ok := args.Get(0).(*gatekeeper.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) UpdateAccessStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, expected gatekeeper.AccessStatus, stamp gatekeeper.AccessStamp) (*gatekeeper.Account, error) {
	args := m.Called(ctx, tx, id, expected, stamp)
	if acc, ok := args.Get(0).(*gatekeeper.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) ListWithProvenance(ctx context.Context) ([]*gatekeeper.Account, error) {
	args := m.Called(ctx)
	if accs, ok := args.Get(0).([]*gatekeeper.Account); ok {
		return accs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) GetWithProvenance(ctx context.Context, id uuid.UUID) (*gatekeeper.Account, error) {
	args := m.Called(ctx, id)
	if acc, ok := args.Get(0).(*gatekeeper.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

// RecordingTrail captures appended audit records in order so tests can
// assert pairing and sequencing without a database.
type RecordingTrail struct {
	mu      sync.Mutex
	Records []*gatekeeper.AuditRecord
	Failed  error
}

func (t *RecordingTrail) Append(ctx context.Context, record *gatekeeper.AuditRecord) (*gatekeeper.AuditRecord, error) {
	return t.AppendTx(ctx, nil, record)
}

func (t *RecordingTrail) AppendTx(ctx context.Context, tx bun.IDB, record *gatekeeper.AuditRecord) (*gatekeeper.AuditRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Failed != nil {
		return nil, t.Failed
	}

	t.Records = append(t.Records, record)
	return record, nil
}

func (t *RecordingTrail) Search(ctx context.Context, query gatekeeper.AuditQuery) (*gatekeeper.AuditPage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &gatekeeper.AuditPage{
		Records: t.Records,
		Count:   len(t.Records),
		Total:   len(t.Records),
		Page:    1,
		Pages:   1,
	}, nil
}

func (t *RecordingTrail) HistoryFor(ctx context.Context, accountID uuid.UUID) ([]*gatekeeper.AuditRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := []*gatekeeper.AuditRecord{}
	for _, r := range t.Records {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	return out, nil
}

// TestRepositoryManager wires mock repositories behind the manager
// interface. RunInTx executes the callback inline with a zero transaction;
// the mocks never touch it.
type TestRepositoryManager struct {
	AccountsRepo gatekeeper.Accounts
	Trail        gatekeeper.AuditTrail
	TxErr        error
}

func (m *TestRepositoryManager) Validate() error { return nil }

func (m *TestRepositoryManager) MustValidate() {}

func (m *TestRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	if m.TxErr != nil {
		return m.TxErr
	}
	return f(ctx, bun.Tx{})
}

func (m *TestRepositoryManager) Accounts() gatekeeper.Accounts {
	return m.AccountsRepo
}

func (m *TestRepositoryManager) AuditTrail() gatekeeper.AuditTrail {
	return m.Trail
}

// testConfig implements gatekeeper.Config
type testConfig struct {
	signingKey string
	tokenTTL   string
	issuer     string
	audience   []string
	contextKey string
	authScheme string
	adminCode  string
	corsOrigin string
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey: "test-signing-key",
		issuer:     "gatekeeper-test",
		audience:   []string{"gatekeeper-test"},
		contextKey: "account",
		authScheme: "Bearer",
		adminCode:  "letmein-admin",
		corsOrigin: "*",
	}
}

func (c *testConfig) GetSigningKey() string { return c.signingKey }
func (c *testConfig) GetTokenTTL() (d time.Duration) {
	if c.tokenTTL == "" {
		return time.Hour
	}
	d, _ = time.ParseDuration(c.tokenTTL)
	return d
}
func (c *testConfig) GetIssuer() string                { return c.issuer }
func (c *testConfig) GetAudience() []string            { return c.audience }
func (c *testConfig) GetContextKey() string            { return c.contextKey }
func (c *testConfig) GetAuthScheme() string            { return c.authScheme }
func (c *testConfig) GetAdminRegistrationCode() string { return c.adminCode }
func (c *testConfig) GetCORSOrigin() string            { return c.corsOrigin }

// MockContext mocks the router.Context
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) QueryValues(key string) []string {
	args := m.Called(key)
	return args.Get(0).([]string)
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) IP() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) FormFile(key string) (*multipart.FileHeader, error) {
	args := m.Called(key)
	if fh, ok := args.Get(0).(*multipart.FileHeader); ok {
		return fh, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) LocalsMerge(key any, value map[string]any) map[string]any {
	args := m.Called(key, value)
	out, _ := args.Get(0).(map[string]any)
	return out
}

func (m *MockContext) SendStatus(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) SendStream(r io.Reader) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockContext) RouteName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) RouteParams() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

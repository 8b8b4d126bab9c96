package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/storelane/storelane/internal/config"
	"github.com/storelane/storelane/internal/gate"
	invoicedomain "github.com/storelane/storelane/internal/invoice/domain"
	subscriptiondomain "github.com/storelane/storelane/internal/subscription/domain"
	tenantdomain "github.com/storelane/storelane/internal/tenant/domain"
	"github.com/storelane/storelane/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeResolver struct {
	tenants map[string]tenantctx.Tenant
}

func (f *fakeResolver) Resolve(ctx context.Context, rawSlug string) (tenantctx.Tenant, error) {
	if rawSlug == "" {
		return tenantctx.Tenant{}, tenantdomain.ErrNoSlug
	}
	tenant, ok := f.tenants[rawSlug]
	if !ok {
		return tenantctx.Tenant{}, tenantdomain.ErrNotFound
	}
	return tenant, nil
}

type fakeSubscriptionService struct {
	subscriptiondomain.Service

	statuses map[snowflake.ID]subscriptiondomain.StatusInfo
	trials   int
}

func (f *fakeSubscriptionService) CurrentStatus(ctx context.Context, tenantID snowflake.ID) (subscriptiondomain.StatusInfo, error) {
	return f.statuses[tenantID], nil
}

func (f *fakeSubscriptionService) StartTrial(ctx context.Context, tenantID snowflake.ID, planID string) (subscriptiondomain.Subscription, error) {
	f.trials++
	return subscriptiondomain.Subscription{TenantID: tenantID, PlanID: planID}, nil
}

type fakeInvoiceService struct {
	invoicedomain.Service

	creates int
}

func (f *fakeInvoiceService) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.InvoiceDetail, error) {
	f.creates++
	return invoicedomain.InvoiceDetail{Invoice: invoicedomain.Invoice{InvoiceNumber: 1}}, nil
}

type serverFixture struct {
	engine  *gin.Engine
	subs    *fakeSubscriptionService
	inv     *fakeInvoiceService
	tenants map[string]tenantctx.Tenant
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	openTenant := tenantctx.Tenant{ID: 1, Slug: "open-store"}
	suspendedTenant := tenantctx.Tenant{ID: 2, Slug: "suspended-store"}
	expiredTenant := tenantctx.Tenant{ID: 3, Slug: "expired-store"}

	subs := &fakeSubscriptionService{
		statuses: map[snowflake.ID]subscriptiondomain.StatusInfo{
			openTenant.ID:      {Status: subscriptiondomain.StatusActive, DaysRemaining: 20},
			suspendedTenant.ID: {Status: subscriptiondomain.StatusSuspended},
			expiredTenant.ID:   {Status: subscriptiondomain.StatusExpired},
		},
	}
	inv := &fakeInvoiceService{}
	tenants := map[string]tenantctx.Tenant{
		openTenant.Slug:      openTenant,
		suspendedTenant.Slug: suspendedTenant,
		expiredTenant.Slug:   expiredTenant,
	}

	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{PlatformAPIKey: "secret-key"},
		Log:             zap.NewNop(),
		Resolver:        &fakeResolver{tenants: tenants},
		Gate:            gate.New(gate.Param{Log: zap.NewNop(), Svc: subs}),
		SubscriptionSvc: subs,
		InvoiceSvc:      inv,
	})

	return &serverFixture{engine: engine, subs: subs, inv: inv, tenants: tenants}
}

func (f *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestStorefrontStatus(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/store/open-store/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["open"])

	w = f.do(httptest.NewRequest(http.MethodGet, "/store/suspended-store/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["open"])
}

func TestUnknownStoreIs404(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/store/nobody-home/status", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "tenant_not_found", body.Error.Type)
}

func TestMissingStoreSlugIs404(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/billing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "no_slug_provided", body.Error.Type)
}

func TestTenantAdminGate(t *testing.T) {
	f := newServerFixture(t)

	payload := []byte(`{"lines":[{"title":"X","unit_price":100,"quantity":1}],"payment_method":"cash"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/invoices", bytes.NewReader(payload))
	req.Header.Set(HeaderStoreSlug, "open-store")
	w := f.do(req)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, f.inv.creates)

	req = httptest.NewRequest(http.MethodPost, "/api/invoices", bytes.NewReader(payload))
	req.Header.Set(HeaderStoreSlug, "expired-store")
	w = f.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "subscription_blocked", body.Error.Type)
	assert.Equal(t, "expired", body.Error.Reason)
	assert.Equal(t, 1, f.inv.creates, "blocked request never reaches the handler")
}

func TestBillingStatusReachableWhileBlocked(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/billing", nil)
	req.Header.Set(HeaderStoreSlug, "suspended-store")
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["blocked"])
	assert.Equal(t, "suspended", body["reason"])
}

func TestPlatformKeyGuard(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/platform/tenants/open-store/subscription", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/platform/tenants/open-store/subscription", nil)
	req.Header.Set(HeaderPlatformKey, "wrong")
	w = f.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/platform/tenants/open-store/subscription", nil)
	req.Header.Set(HeaderPlatformKey, "secret-key")
	w = f.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPlatformStartTrial(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/platform/tenants/open-store/subscription/trial",
		bytes.NewReader([]byte(`{"plan_id":"starter"}`)))
	req.Header.Set("Authorization", "Bearer secret-key")
	w := f.do(req)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, f.subs.trials)
}

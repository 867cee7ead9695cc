package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-engine/internal/app"
	"inventory-engine/internal/core"
)

const testSecret = "test-secret"

type fakeService struct {
	app.ApplicationService
	assignErr error
	lastID    app.Identity
	lastReq   app.AssignRequest
}

func (f *fakeService) Assign(_ context.Context, id app.Identity, req app.AssignRequest) (*core.TransferResult, error) {
	f.lastID = id
	f.lastReq = req
	if f.assignErr != nil {
		return nil, f.assignErr
	}
	return &core.TransferResult{ProductID: req.ProductID, Quantity: req.Quantity}, nil
}

func (f *fakeService) GetOrder(_ context.Context, _ app.Identity, ref string) (*app.OrderResult, error) {
	return nil, &core.NotFoundError{Entity: "order", ID: ref}
}

type fakeObserver struct {
	routes []string
	codes  []string
}

func (f *fakeObserver) ObserveHTTP(_, route string, _ int, _ time.Duration) {
	f.routes = append(f.routes, route)
}

func (f *fakeObserver) ObserveError(code string) { f.codes = append(f.codes, code) }

func newTestServer(svc app.ApplicationService, obs HTTPObserver) http.Handler {
	return NewHandler(svc, Options{JWTSecret: testSecret, Metrics: obs})
}

func authed(t *testing.T, req *http.Request, id app.Identity) *http.Request {
	t.Helper()
	token, err := IssueToken(testSecret, id, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&fakeService{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequireAuth(t *testing.T) {
	h := newTestServer(&fakeService{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad, err := IssueToken("other-secret", app.Identity{UserID: "1", Role: app.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+bad)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, authed(t, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil),
		app.Identity{UserID: "7", Role: app.RoleManager, ShopID: intp(3)}))
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "7", me["user_id"])
	assert.Equal(t, "manager", me["role"])
	assert.Equal(t, 3.0, me["shop_id"])
}

func TestAssign_PassesIdentityAndBody(t *testing.T) {
	svc := &fakeService{}
	obs := &fakeObserver{}
	h := newTestServer(svc, obs)

	body := `{"location_id": 3, "product_id": 9, "quantity": 4, "replenish": true}`
	req := authed(t, httptest.NewRequest(http.MethodPost, "/api/v1/stock/assign", strings.NewReader(body)),
		app.Identity{UserID: "1", Role: app.RoleAdmin})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", svc.lastID.UserID)
	assert.Equal(t, app.AssignRequest{LocationID: 3, ProductID: 9, Quantity: 4, Replenish: true}, svc.lastReq)
	assert.Equal(t, []string{"/api/v1/stock/assign"}, obs.routes)
}

func TestAssign_InsufficientStockDetails(t *testing.T) {
	svc := &fakeService{assignErr: fmt.Errorf("assign: %w",
		&core.InsufficientStockError{ProductID: 9, LocationID: intp(3), AtShop: true, Requested: 4, Available: 1})}
	obs := &fakeObserver{}
	h := newTestServer(svc, obs)

	req := authed(t, httptest.NewRequest(http.MethodPost, "/api/v1/stock/assign",
		strings.NewReader(`{"location_id":3,"product_id":9,"quantity":4}`)), app.Identity{Role: app.RoleAdmin})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp struct {
		Code      string         `json:"code"`
		RequestID string         `json:"request_id"`
		Details   map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INSUFFICIENT_SHOP_STOCK", resp.Code)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, 1.0, resp.Details["available"])
	assert.Equal(t, 3.0, resp.Details["location_id"])
	assert.Equal(t, []string{"INSUFFICIENT_SHOP_STOCK"}, obs.codes)
}

func TestBadJSON(t *testing.T) {
	h := newTestServer(&fakeService{}, nil)
	req := authed(t, httptest.NewRequest(http.MethodPost, "/api/v1/stock/assign", strings.NewReader(`{`)),
		app.Identity{Role: app.RoleAdmin})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	h := newTestServer(&fakeService{}, nil)
	req := authed(t, httptest.NewRequest(http.MethodGet, "/api/v1/orders/ORD-2026-00001", nil),
		app.Identity{Role: app.RoleAdmin})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"forbidden", fmt.Errorf("%w: nope", app.ErrForbidden), http.StatusForbidden, "FORBIDDEN"},
		{"pool shortage", &core.InsufficientStockError{ProductID: 1, Requested: 5, Available: 2}, http.StatusConflict, "INSUFFICIENT_STOCK"},
		{"bulk shortage", &core.MaterialShortageError{Kind: core.MaterialBulk}, http.StatusConflict, "INSUFFICIENT_BULK_MATERIAL"},
		{"packaging shortage", &core.MaterialShortageError{Kind: core.MaterialPackaging}, http.StatusConflict, "INSUFFICIENT_PACKAGING"},
		{"unsold", &core.UnsoldStockRemainingError{Remaining: 3}, http.StatusConflict, "UNSOLD_STOCK_REMAINING"},
		{"not assigned", &core.NotAssignedError{LocationID: 1, ProductID: 2}, http.StatusConflict, "NOT_ASSIGNED_TO_LOCATION"},
		{"transition", &core.InvalidTransitionError{From: core.OrderCompleted, To: core.OrderCancelled}, http.StatusConflict, "INVALID_TRANSITION"},
		{"not found", &core.NotFoundError{Entity: "product", ID: 9}, http.StatusNotFound, "NOT_FOUND"},
		{"conflict", fmt.Errorf("%w: deadlock", core.ErrConcurrencyConflict), http.StatusConflict, "CONCURRENCY_CONFLICT"},
		{"busy", fmt.Errorf("%w: lock timeout", core.ErrBusy), http.StatusServiceUnavailable, "BUSY"},
		{"quantity", core.ErrInvalidQuantity, http.StatusBadRequest, "INVALID_QUANTITY"},
		{"endpoint", core.ErrInvalidEndpoint, http.StatusBadRequest, "INVALID_ENDPOINT"},
		{"input", core.ErrInvalidInput, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := classify(tt.err)
			assert.Equal(t, tt.status, e.Status)
			assert.Equal(t, tt.code, e.Code)
		})
	}
}

func TestClassify_HidesInternalMessages(t *testing.T) {
	e := classify(errors.New("pq: password authentication failed"))
	assert.Equal(t, "internal server error", e.Message)
}

func TestCORS(t *testing.T) {
	h := NewHandler(&fakeService{}, Options{JWTSecret: testSecret, AllowedOrigins: []string{"http://shop.local"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	req.Header.Set("Origin", "http://shop.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://shop.local", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID_KeepsSafeCallerID(t *testing.T) {
	h := newTestServer(&fakeService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	req.Header.Set("X-Request-ID", "<script>")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "<script>", rec.Header().Get("X-Request-ID"))
}

func intp(v int) *int { return &v }

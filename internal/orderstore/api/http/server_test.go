package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderboard/internal/orderstore/adapter/memory"
	"orderboard/internal/orderstore/api/http/handle"
	"orderboard/internal/orderstore/app/core"
	"orderboard/internal/orderstore/app/services"
	"orderboard/internal/session"
	"orderboard/pkg/logger"
	"orderboard/pkg/models"
)

const secret = "test-secret"

type fixture struct {
	router http.Handler
	repo   *memory.OrderRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.NewOrderRepo()
	svc := services.NewOrderService(repo, nil, nil, core.ServiceParams{}, logger.NewNop())
	return &fixture{router: NewRouter(svc, repo, secret, logger.NewNop()), repo: repo}
}

func token(t *testing.T, tenant string, role session.Role, opts ...session.Option) string {
	t.Helper()
	sess, err := session.New(tenant, role, opts...)
	require.NoError(t, err)
	tok, _, err := session.IssueToken(secret, sess, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handle.ErrorResponse {
	t.Helper()
	var e handle.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func seed(f *fixture, id, tenant string, status models.Status, table int, customer string) {
	now := time.Now().UTC()
	f.repo.Put(models.Order{
		ID: id, TenantID: tenant, Number: int64(len(id)), Status: status,
		TableNumber: table, CustomerID: customer, CreatedAt: now, UpdatedAt: now,
	})
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/orders", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, handle.CodeUnauthorized, decodeError(t, rec).Code)
}

func TestCreateAndList_TenantFromToken(t *testing.T) {
	f := newFixture(t)
	srv := token(t, "t1", session.RoleServer, session.WithSubject("waiter-1"))

	rec := f.do(t, http.MethodPost, "/v1/orders", srv, models.CreateOrderRequest{
		TableNumber: 3,
		Items: []models.OrderItemRequest{
			{Name: "margherita", Quantity: 2, UnitPrice: decimal.RequireFromString("9.50")},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeData[models.Order](t, rec)
	assert.Equal(t, "t1", created.TenantID)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, "19", created.Total.String())

	seed(f, "other", "t2", models.StatusPending, 1, "")

	rec = f.do(t, http.MethodGet, "/v1/orders?status=pending", srv, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	orders := decodeData[[]models.Order](t, rec)
	require.Len(t, orders, 1)
	assert.Equal(t, created.ID, orders[0].ID)

	rec = f.do(t, http.MethodGet, "/v1/orders/other", srv, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/orders?status=shipped", srv, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/orders", token(t, "t1", session.RoleKitchen), models.CreateOrderRequest{})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/orders", token(t, "t1", session.RoleAdmin), models.CreateOrderRequest{TableNumber: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, handle.CodeInvalidRequest, decodeError(t, rec).Code)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	seed(f, "a", "t1", models.StatusPending, 2, "")
	kitchen := token(t, "t1", session.RoleKitchen, session.WithSubject("chef"))

	rec := f.do(t, http.MethodPatch, "/v1/orders/a/status", kitchen, map[string]string{"status": "preparing"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusPreparing, decodeData[models.Order](t, rec).Status)

	// Same target again is a no-op success.
	rec = f.do(t, http.MethodPatch, "/v1/orders/a/status", kitchen, map[string]string{"status": "PREPARING"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Kitchen cannot serve.
	rec = f.do(t, http.MethodPatch, "/v1/orders/a/status", kitchen, map[string]string{"status": "SERVED"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := token(t, "t1", session.RoleAdmin)
	rec = f.do(t, http.MethodPatch, "/v1/orders/a/status", admin, map[string]string{"status": "CANCELLED"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Terminal orders refuse even their own status.
	rec = f.do(t, http.MethodPatch, "/v1/orders/a/status", admin, map[string]string{"status": "CANCELLED"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, models.StatusCancelled, decodeError(t, rec).CurrentStatus)

	rec = f.do(t, http.MethodPatch, "/v1/orders/a/status", kitchen, map[string]string{"status": "READY"})
	require.Equal(t, http.StatusConflict, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, handle.CodeInvalidTransition, e.Code)
	assert.Equal(t, models.StatusCancelled, e.CurrentStatus)

	rec = f.do(t, http.MethodPatch, "/v1/orders/missing/status", kitchen, map[string]string{"status": "READY"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPatch, "/v1/orders/a/status", kitchen, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/orders/a/history", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decodeData[[]models.StatusLog](t, rec)
	require.Len(t, hist, 2)
	assert.Equal(t, "chef", hist[0].ChangedBy)
	assert.Equal(t, models.StatusCancelled, hist[1].Status)
}

func TestCustomerSeesOnlyOwnOrders(t *testing.T) {
	f := newFixture(t)
	seed(f, "mine", "t1", models.StatusPending, 0, "c1")
	seed(f, "theirs", "t1", models.StatusPending, 0, "c2")
	seed(f, "table", "t1", models.StatusPending, 5, "")
	cust := token(t, "t1", session.RoleCustomer, session.WithCustomer("c1"))

	rec := f.do(t, http.MethodGet, "/v1/orders", cust, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	orders := decodeData[[]models.Order](t, rec)
	require.Len(t, orders, 1)
	assert.Equal(t, "mine", orders[0].ID)

	rec = f.do(t, http.MethodGet, "/v1/orders/theirs", cust, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPatch, "/v1/orders/mine/status", cust, map[string]string{"status": "CANCELLED"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCustomerList_OwnOrderBeyondFirstTenantPage(t *testing.T) {
	f := newFixture(t)
	seed(f, "o-1", "t1", models.StatusPending, 0, "c2")
	seed(f, "o-2", "t1", models.StatusPending, 0, "c2")
	seed(f, "o-3", "t1", models.StatusPending, 0, "c2")
	seed(f, "newest-mine", "t1", models.StatusPending, 0, "c1")
	cust := token(t, "t1", session.RoleCustomer, session.WithCustomer("c1"))

	for _, path := range []string{"/v1/orders?limit=2", "/v1/orders?limit=2&customer_id=c2"} {
		rec := f.do(t, http.MethodGet, path, cust, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var env handle.DataResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		require.NotNil(t, env.Meta)
		assert.Equal(t, 1, env.Meta.Count, path)

		orders := decodeData[[]models.Order](t, rec)
		require.Len(t, orders, 1, path)
		assert.Equal(t, "newest-mine", orders[0].ID)
	}
}

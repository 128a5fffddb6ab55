package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderboard/internal/lifecycle"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/models"
)

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "tok")
	require.NoError(t, err)
	return c
}

func TestListOrders_SendsFiltersAndToken(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "PENDING,PREPARING", r.URL.Query().Get("status"))
		assert.Equal(t, "200", r.URL.Query().Get("limit"))
		assert.Equal(t, "c1", r.URL.Query().Get("customer_id"))
		_, _ = io.WriteString(w, `{"data":[{"id":"a","order_number":1,"tenant_id":"t1","status":"pending","subtotal":"12.50"}]}`)
	})

	orders, err := c.ListOrders(context.Background(), "t1", models.ListFilters{
		Statuses:   []models.Status{models.StatusPending, models.StatusPreparing},
		CustomerID: "c1",
		Limit:      200,
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.StatusPending, orders[0].Status)
	assert.True(t, decimal.RequireFromString("12.5").Equal(orders[0].Subtotal))
}

func TestListOrders_Envelopes(t *testing.T) {
	bodies := map[string]string{
		"bare array":   `[{"id":"a","status":"READY"}]`,
		"orders key":   `{"orders":[{"orderId":"a","orderStatus":"ready"}]}`,
		"nested data":  `{"data":{"items":[{"id":"a","status":"Ready"}]}}`,
		"results key":  `{"results":[{"id":"a","status":"READY"}],"meta":{"count":1}}`,
		"single order": `{"data":{"id":"a","status":"READY"}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, body)
			})
			orders, err := c.ListOrders(context.Background(), "t1", models.ListFilters{})
			require.NoError(t, err)
			require.Len(t, orders, 1)
			assert.Equal(t, "a", orders[0].ID)
			assert.Equal(t, models.StatusReady, orders[0].Status)
			assert.Equal(t, "t1", orders[0].TenantID)
		})
	}
}

func TestListOrders_CamelCaseAndNumbers(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{
			"orderId": 42, "orderNumber": "7", "tenantId": "t1", "tableNumber": 3,
			"status": "in-progress", "totalAmount": 19.9,
			"createdAt": "2026-01-02T10:00:00Z",
			"orderItems": [{"menuItemId": "m1", "name": "pizza", "qty": 2, "unitPrice": "9.95"}]
		}]`)
	})

	orders, err := c.ListOrders(context.Background(), "t1", models.ListFilters{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, "42", o.ID)
	assert.Equal(t, int64(7), o.Number)
	assert.Equal(t, 3, o.TableNumber)
	assert.Equal(t, models.StatusPreparing, o.Status)
	assert.Equal(t, "19.9", o.Total.String())
	assert.False(t, o.CreatedAt.IsZero())
	assert.Equal(t, o.CreatedAt, o.UpdatedAt)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)
}

func TestListOrders_DropsUnreadableAndForeignOrders(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[
			{"id":"a","status":"READY","tenant_id":"t1"},
			{"id":"b","status":"SHIPPED","tenant_id":"t1"},
			{"status":"READY"},
			{"id":"c","status":"READY","tenant_id":"t2"}
		]`)
	})

	orders, err := c.ListOrders(context.Background(), "t1", models.ListFilters{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "a", orders[0].ID)
}

func TestListOrders_ErrorMapping(t *testing.T) {
	tests := []struct {
		code int
		body string
		want error
	}{
		{http.StatusUnauthorized, `{"error":"expired"}`, apperr.ErrUnauthorized},
		{http.StatusForbidden, `{}`, apperr.ErrForbidden},
		{http.StatusNotFound, `{}`, apperr.ErrNotFound},
		{http.StatusBadGateway, `oops`, apperr.ErrTransientFetch},
		{http.StatusOK, `{"unexpected":true}`, apperr.ErrTransientFetch},
	}
	for _, tt := range tests {
		c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.code)
			_, _ = io.WriteString(w, tt.body)
		})
		_, err := c.ListOrders(context.Background(), "t1", models.ListFilters{})
		assert.ErrorIs(t, err, tt.want, "status %d", tt.code)
		assert.Equal(t, apperr.IsAuthorization(tt.want), apperr.IsAuthorization(err))
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/orders/a/status", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"status":"SERVED","note":"table 4"}`, string(body))
		_, _ = io.WriteString(w, `{"data":{"id":"a","status":"SERVED"}}`)
	})

	o, err := c.UpdateOrderStatus(context.Background(), models.StatusChange{
		OrderID: "a", Target: models.StatusServed, Note: "table 4",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusServed, o.Status)
}

func TestUpdateOrderStatus_Conflicts(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":"invalid status transition","code":"invalid_transition","current_status":"CANCELLED"}`)
	})
	_, err := c.UpdateOrderStatus(context.Background(), models.StatusChange{OrderID: "a", Target: models.StatusServed})

	var ite *lifecycle.InvalidTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, models.StatusCancelled, ite.From)
	assert.Equal(t, models.StatusServed, ite.To)

	c = newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":"busy","code":"status_conflict"}`)
	})
	_, err = c.UpdateOrderStatus(context.Background(), models.StatusChange{OrderID: "a", Target: models.StatusServed})
	assert.ErrorIs(t, err, apperr.ErrStatusConflict)
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("not a url", "tok")
	assert.Error(t, err)
}

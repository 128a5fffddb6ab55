package remote

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderboard/internal/lifecycle"
	"orderboard/internal/orderstore/adapter/memory"
	storeapi "orderboard/internal/orderstore/api/http"
	"orderboard/internal/orderstore/app/core"
	"orderboard/internal/orderstore/app/services"
	"orderboard/internal/session"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/logger"
	"orderboard/pkg/models"
)

// The client and the order store API agree on the wire contract.
func TestClient_AgainstOrderStore(t *testing.T) {
	const secret = "s3cret"
	repo := memory.NewOrderRepo()
	svc := services.NewOrderService(repo, nil, nil, core.ServiceParams{}, logger.NewNop())
	srv := httptest.NewServer(storeapi.NewRouter(svc, repo, secret, logger.NewNop()))
	t.Cleanup(srv.Close)

	now := time.Now().UTC()
	repo.Put(models.Order{ID: "a", Number: 1, TenantID: "t1", TableNumber: 2, Status: models.StatusReady, CreatedAt: now, UpdatedAt: now})
	repo.Put(models.Order{ID: "b", Number: 1, TenantID: "t2", TableNumber: 2, Status: models.StatusReady, CreatedAt: now, UpdatedAt: now})

	sess, err := session.New("t1", session.RoleServer, session.WithTables(2))
	require.NoError(t, err)
	tok, _, err := session.IssueToken(secret, sess, time.Minute)
	require.NoError(t, err)

	c, err := New(srv.URL, tok)
	require.NoError(t, err)
	ctx := context.Background()

	orders, err := c.ListOrders(ctx, "t1", models.ListFilters{Statuses: []models.Status{models.StatusReady}})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "a", orders[0].ID)
	assert.True(t, orders[0].UpdatedAt.Equal(now))

	// Another actor cancels first; serving now reports where the order went.
	_, err = svc.UpdateOrderStatus(ctx, models.StatusChange{TenantID: "t1", OrderID: "a", Target: models.StatusCancelled})
	require.NoError(t, err)

	_, err = c.UpdateOrderStatus(ctx, models.StatusChange{OrderID: "a", Target: models.StatusServed})
	var ite *lifecycle.InvalidTransitionError
	require.True(t, errors.As(err, &ite), "got %v", err)
	assert.Equal(t, models.StatusCancelled, ite.From)

	// Cancelling again is refused by the store and reads as already applied.
	_, err = c.UpdateOrderStatus(ctx, models.StatusChange{OrderID: "a", Target: models.StatusCancelled})
	require.True(t, errors.As(err, &ite), "got %v", err)
	assert.True(t, ite.AlreadyApplied())

	_, err = c.UpdateOrderStatus(ctx, models.StatusChange{OrderID: "b", Target: models.StatusServed})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	bad, err := New(srv.URL, "expired-or-forged")
	require.NoError(t, err)
	_, err = bad.ListOrders(ctx, "t1", models.ListFilters{})
	assert.True(t, apperr.IsAuthorization(err))
}

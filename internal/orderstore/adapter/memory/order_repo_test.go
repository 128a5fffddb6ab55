package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderboard/internal/orderstore/app/core"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/models"
)

func newOrder(id, tenant string) models.Order {
	return models.Order{
		ID:          id,
		TenantID:    tenant,
		TableNumber: 3,
		Items:       []models.OrderItem{{Name: "soup", Quantity: 1, UnitPrice: decimal.NewFromInt(5)}},
	}
}

func TestCreate_NumbersPerTenant(t *testing.T) {
	ctx := context.Background()
	r := NewOrderRepo()

	a, err := r.Create(ctx, newOrder("a", "t1"), "pos")
	require.NoError(t, err)
	b, err := r.Create(ctx, newOrder("b", "t1"), "pos")
	require.NoError(t, err)
	c, err := r.Create(ctx, newOrder("c", "t2"), "pos")
	require.NoError(t, err)

	assert.EqualValues(t, 1, a.Number)
	assert.EqualValues(t, 2, b.Number)
	assert.EqualValues(t, 1, c.Number)
	assert.Equal(t, models.StatusPending, a.Status)

	_, err = r.Create(ctx, newOrder("a", "t1"), "pos")
	assert.ErrorIs(t, err, apperr.ErrStatusConflict)
}

func TestGet_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	r := NewOrderRepo()
	_, err := r.Create(ctx, newOrder("a", "t1"), "pos")
	require.NoError(t, err)

	_, err = r.Get(ctx, "t2", "a")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = r.History(ctx, "t2", "a")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCompareAndSetStatus(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewOrderRepo().WithClock(func() time.Time { return frozen })

	o, err := r.Create(ctx, newOrder("a", "t1"), "pos")
	require.NoError(t, err)

	upd, err := r.CompareAndSetStatus(ctx, core.StatusUpdate{
		TenantID: "t1", OrderID: "a", From: models.StatusPending, To: models.StatusPreparing, ChangedBy: "chef",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, upd.Status)
	assert.True(t, upd.UpdatedAt.After(o.UpdatedAt), "clock is frozen but updated_at still moves")

	_, err = r.CompareAndSetStatus(ctx, core.StatusUpdate{
		TenantID: "t1", OrderID: "a", From: models.StatusPending, To: models.StatusCancelled,
	})
	assert.ErrorIs(t, err, apperr.ErrStatusConflict)

	_, err = r.CompareAndSetStatus(ctx, core.StatusUpdate{TenantID: "t1", OrderID: "zz"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	hist, err := r.History(ctx, "t1", "a")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, models.StatusPending, hist[0].Status)
	assert.Equal(t, "chef", hist[1].ChangedBy)
}

func TestList_FilterAndPage(t *testing.T) {
	ctx := context.Background()
	r := NewOrderRepo()
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := r.Create(ctx, newOrder(id, "t1"), "pos")
		require.NoError(t, err)
	}
	_, err := r.CompareAndSetStatus(ctx, core.StatusUpdate{TenantID: "t1", OrderID: "b", From: models.StatusPending, To: models.StatusCancelled})
	require.NoError(t, err)

	all, err := r.List(ctx, "t1", models.ListFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	pending, err := r.List(ctx, "t1", models.ListFilters{Statuses: []models.Status{models.StatusPending}})
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	page, err := r.List(ctx, "t1", models.ListFilters{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.EqualValues(t, 2, page[0].Number)

	empty, err := r.List(ctx, "t1", models.ListFilters{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestList_OwnerFilterAppliesBeforeLimit(t *testing.T) {
	ctx := context.Background()
	r := NewOrderRepo()
	for _, id := range []string{"a", "b", "c"} {
		o := newOrder(id, "t1")
		o.CustomerID = "c2"
		_, err := r.Create(ctx, o, "pos")
		require.NoError(t, err)
	}
	mine := newOrder("d", "t1")
	mine.CustomerID = "c1"
	_, err := r.Create(ctx, mine, "pos")
	require.NoError(t, err)

	page, err := r.List(ctx, "t1", models.ListFilters{CustomerID: "c1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "d", page[0].ID)
}

func TestNextUpdatedAt(t *testing.T) {
	prev := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, prev.Add(time.Microsecond), core.NextUpdatedAt(prev, prev))
	assert.Equal(t, prev.Add(time.Microsecond), core.NextUpdatedAt(prev, prev.Add(-time.Hour)))
	assert.Equal(t, prev.Add(time.Second), core.NextUpdatedAt(prev, prev.Add(time.Second)))
}

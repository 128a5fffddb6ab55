package projector

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderboard/internal/session"
	"orderboard/pkg/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func order(id string, n int64, st models.Status, age time.Duration) models.Order {
	return models.Order{
		ID:          id,
		Number:      n,
		TenantID:    "t1",
		TableNumber: int(n%4) + 1,
		Status:      st,
		Items: []models.OrderItem{
			{Name: "pad thai", Quantity: 1, UnitPrice: decimal.NewFromInt(12), Subtotal: decimal.NewFromInt(12)},
		},
		Subtotal:  decimal.NewFromInt(12),
		Total:     decimal.NewFromInt(13),
		CreatedAt: t0.Add(-age),
		UpdatedAt: t0.Add(-age / 2),
	}
}

func ids(orders []models.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}

func fixture() []models.Order {
	return []models.Order{
		order("p1", 1, models.StatusPending, 10*time.Minute),
		order("p2", 2, models.StatusPreparing, 20*time.Minute),
		order("r1", 3, models.StatusReady, 40*time.Second), // updated 20s ago
		order("r2", 4, models.StatusReady, 10*time.Minute), // updated 5m ago
		order("s1", 5, models.StatusServed, 30*time.Minute),
		order("c1", 6, models.StatusCompleted, time.Hour),
		order("x1", 7, models.StatusCancelled, 2*time.Hour),
	}
}

func TestProject_Kitchen(t *testing.T) {
	in := fixture()
	got := Project(in, Scope{Kind: Kitchen, TenantID: "t1", ReadyGrace: 30 * time.Second, Now: t0})

	assert.Equal(t, []string{"p2", "p1", "r1"}, ids(got))
	for _, o := range got {
		assert.True(t, o.Total.IsZero())
		assert.True(t, o.Items[0].UnitPrice.IsZero())
	}
	// input untouched
	assert.True(t, in[0].Total.Equal(decimal.NewFromInt(13)))
	assert.True(t, in[0].Items[0].UnitPrice.Equal(decimal.NewFromInt(12)))

	got = Project(in, Scope{Kind: Kitchen, TenantID: "t1", Now: t0})
	assert.Equal(t, []string{"p2", "p1"}, ids(got))
}

func TestProject_Server(t *testing.T) {
	got := Project(fixture(), Scope{Kind: Server, TenantID: "t1", Now: t0})
	assert.Equal(t, []string{"s1", "r2", "r1"}, ids(got))

	// r1 is on table 4, r2 on table 1, s1 on table 2
	got = Project(fixture(), Scope{Kind: Server, TenantID: "t1", Tables: []int{1, 2}, Now: t0})
	assert.Equal(t, []string{"s1", "r2"}, ids(got))
}

func TestProject_Admin(t *testing.T) {
	got := Project(fixture(), Scope{Kind: Admin, TenantID: "t1", Now: t0})
	assert.Len(t, got, 7)
	assert.Equal(t, "r1", got[0].ID, "newest first")

	got = Project(fixture(), Scope{
		Kind:     Admin,
		TenantID: "t1",
		Statuses: []models.Status{models.StatusReady, models.StatusCancelled},
	})
	assert.ElementsMatch(t, []string{"r1", "r2", "x1"}, ids(got))

	got = Project(fixture(), Scope{
		Kind:        Admin,
		TenantID:    "t1",
		CreatedFrom: t0.Add(-25 * time.Minute),
		CreatedTo:   t0.Add(-5 * time.Minute),
	})
	assert.ElementsMatch(t, []string{"p1", "p2", "r2"}, ids(got))

	got = Project(fixture(), Scope{Kind: Admin, TenantID: "t1", Search: "x1"})
	assert.Equal(t, []string{"x1"}, ids(got))
	got = Project(fixture(), Scope{Kind: Admin, TenantID: "t1", Search: "PAD"})
	assert.Len(t, got, 7)
}

func TestProject_CancelledAndTenant(t *testing.T) {
	in := fixture()
	other := order("x2", 8, models.StatusCancelled, time.Minute)
	other.TenantID = "t2"
	in = append(in, other)

	got := Project(in, Scope{Kind: Cancelled, TenantID: "t1"})
	assert.Equal(t, []string{"x1"}, ids(got))

	assert.Empty(t, Project(in, Scope{Kind: Cancelled}))
	assert.NotNil(t, Project(nil, Scope{Kind: Admin, TenantID: "t1"}))
}

func TestProject_CustomerFailsClosed(t *testing.T) {
	in := fixture()
	in[0].CustomerID = "cust-1"

	assert.Empty(t, Project(in, Scope{Kind: Customer, TenantID: "t1"}))

	got := Project(in, Scope{Kind: Customer, TenantID: "t1", CustomerID: "cust-1"})
	assert.Equal(t, []string{"p1"}, ids(got))
}

func TestScopeFor(t *testing.T) {
	sess, err := session.New("t1", session.RoleServer, session.WithTables(3))
	require.NoError(t, err)

	sc := ScopeFor(sess, Server, Filter{Search: "ignored"})
	assert.Equal(t, []int{3}, sc.Tables)
	assert.Empty(t, sc.Search)

	admin, err := session.New("t1", session.RoleAdmin)
	require.NoError(t, err)
	sc = ScopeFor(admin, Admin, Filter{Search: " ramen ", Statuses: []models.Status{models.StatusServed}})
	assert.Equal(t, "ramen", sc.Search)
	assert.Equal(t, []models.Status{models.StatusServed}, sc.Statuses)
}

func TestServerFilters(t *testing.T) {
	f := ServerFilters(Scope{Kind: Kitchen, ReadyGrace: time.Second}, 50)
	assert.Equal(t, []models.Status{models.StatusPending, models.StatusPreparing, models.StatusReady}, f.Statuses)
	assert.Equal(t, 50, f.Limit)

	f = ServerFilters(Scope{Kind: Customer, CustomerID: "c1"}, 50)
	assert.Empty(t, f.Statuses)
	assert.Equal(t, "c1", f.CustomerID)
	assert.Empty(t, ServerFilters(Scope{Kind: Admin}, 50).CustomerID)
	assert.Equal(t, []models.Status{models.StatusCancelled}, ServerFilters(Scope{Kind: Cancelled}, 50).Statuses)
}

// Whatever the order set looks like, a customer only ever sees their own
// orders within their tenant.
func FuzzProjectCustomer(f *testing.F) {
	f.Add("cust-1", "t1", uint8(5), uint8(2))
	f.Add("", "t1", uint8(3), uint8(0))
	f.Add("cust-2", "", uint8(9), uint8(7))

	f.Fuzz(func(t *testing.T, customer, tenant string, n, seed uint8) {
		statuses := models.Statuses()
		orders := make([]models.Order, 0, n)
		for i := 0; i < int(n); i++ {
			k := (i + int(seed)) % 3
			o := order(fmt.Sprintf("o%d", i), int64(i), statuses[(i+int(seed))%len(statuses)], time.Duration(i)*time.Minute)
			o.CustomerID = []string{customer, "someone-else", ""}[k]
			o.TenantID = []string{tenant, "t1", "t9"}[(i+int(seed/3))%3]
			orders = append(orders, o)
		}

		got := Project(orders, Scope{Kind: Customer, TenantID: tenant, CustomerID: customer})
		if customer == "" || tenant == "" {
			assert.Empty(t, got)
			return
		}
		for _, o := range got {
			assert.Equal(t, customer, o.CustomerID)
			assert.Equal(t, tenant, o.TenantID)
		}
	})
}

func TestScopeVisible(t *testing.T) {
	sc := Scope{Kind: Server, TenantID: "t1", Tables: []int{1}}
	o := order("r2", 4, models.StatusReady, time.Minute) // table 1
	assert.True(t, sc.Visible(o))

	o.TenantID = "t2"
	assert.False(t, sc.Visible(o))
	assert.False(t, Scope{Kind: Customer, TenantID: "t1"}.Visible(order("a", 1, models.StatusPending, 0)))
}

package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"PENDING", StatusPending},
		{"pending", StatusPending},
		{"  Preparing ", StatusPreparing},
		{"in-progress", StatusPreparing},
		{"in progress", StatusPreparing},
		{"cooking", StatusPreparing},
		{"received", StatusPending},
		{"Ready", StatusReady},
		{"served", StatusServed},
		{"completed", StatusCompleted},
		{"canceled", StatusCancelled},
		{"CANCELLED", StatusCancelled},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}

	for _, raw := range []string{"", "shipped", "READY!"} {
		_, err := ParseStatus(raw)
		assert.ErrorIs(t, err, ErrInvalidStatus, raw)
	}
}

func TestParseStatuses(t *testing.T) {
	got, err := ParseStatuses("pending, PREPARING,,ready")
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusPending, StatusPreparing, StatusReady}, got)

	_, err = ParseStatuses("pending,lost")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestOrderClone_DoesNotShareItems(t *testing.T) {
	o := Order{
		ID:     "o1",
		Status: StatusPending,
		Items: []OrderItem{
			{Name: "margherita", Quantity: 1, UnitPrice: decimal.NewFromInt(9)},
		},
	}
	c := o.Clone()
	c.Items[0].Quantity = 5

	assert.Equal(t, 1, o.Items[0].Quantity)
}

func TestListFilters(t *testing.T) {
	f := ListFilters{Limit: 0, Offset: -3}.Normalize(50, 500)
	assert.Equal(t, 50, f.Limit)
	assert.Equal(t, 0, f.Offset)

	f = ListFilters{Limit: 10_000}.Normalize(50, 500)
	assert.Equal(t, 500, f.Limit)

	assert.True(t, ListFilters{}.Matches(StatusServed))
	f = ListFilters{Statuses: []Status{StatusReady}}
	assert.True(t, f.Matches(StatusReady))
	assert.False(t, f.Matches(StatusServed))
}

func TestListFilters_Accepts(t *testing.T) {
	mine := Order{Status: StatusReady, CustomerID: "c1"}
	table := Order{Status: StatusReady, TableNumber: 4}

	assert.True(t, ListFilters{}.Accepts(table))
	assert.True(t, ListFilters{CustomerID: "c1"}.Accepts(mine))
	assert.False(t, ListFilters{CustomerID: "c1"}.Accepts(table))
	assert.False(t, ListFilters{CustomerID: "c1", Statuses: []Status{StatusPending}}.Accepts(mine))
}

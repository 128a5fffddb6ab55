package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidStatus is returned by ParseStatus for values outside the lifecycle.
var ErrInvalidStatus = errors.New("invalid order status")

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusServed    Status = "SERVED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

var statusAliases = map[string]Status{
	"PENDING":     StatusPending,
	"RECEIVED":    StatusPending,
	"NEW":         StatusPending,
	"PREPARING":   StatusPreparing,
	"COOKING":     StatusPreparing,
	"IN_PROGRESS": StatusPreparing,
	"ACCEPTED":    StatusPreparing,
	"READY":       StatusReady,
	"SERVED":      StatusServed,
	"DELIVERED":   StatusServed,
	"COMPLETED":   StatusCompleted,
	"DONE":        StatusCompleted,
	"CANCELLED":   StatusCancelled,
	"CANCELED":    StatusCancelled,
}

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusPending,
		StatusPreparing,
		StatusReady,
		StatusServed,
		StatusCompleted,
		StatusCancelled,
	}
}

// ParseStatus is the one place raw status strings become a Status.
// It folds case, whitespace and separators and accepts the legacy names
// older clients still send.
func ParseStatus(raw string) (Status, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if s, ok := statusAliases[key]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// ParseStatuses parses a comma separated list, skipping empty entries.
func ParseStatuses(raw string) ([]Status, error) {
	var out []Status
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		s, err := ParseStatus(part)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusReady, StatusServed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Order struct {
	ID             string          `json:"id"`
	Number         int64           `json:"order_number"`
	TenantID       string          `json:"tenant_id"`
	TableNumber    int             `json:"table_number,omitempty"`
	CustomerID     string          `json:"customer_id,omitempty"`
	Status         Status          `json:"status"`
	Items          []OrderItem     `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DiscountReason string          `json:"discount_reason,omitempty"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type OrderItem struct {
	MenuItemID   string          `json:"menu_item_id"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Instructions string          `json:"instructions,omitempty"`
}

// Clone returns a deep copy so callers can hand orders out without sharing item slices.
func (o Order) Clone() Order {
	c := o
	if o.Items != nil {
		c.Items = make([]OrderItem, len(o.Items))
		copy(c.Items, o.Items)
	}
	return c
}

func (o Order) IsTerminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusCancelled
}

// Equal reports whether two records describe the same version of an order.
func (o Order) Equal(other Order) bool {
	return o.ID == other.ID && o.Status == other.Status && o.UpdatedAt.Equal(other.UpdatedAt)
}

// ListFilters narrows listOrders. An empty Statuses slice means every status
// and an empty CustomerID means every owner. Pages run oldest first.
type ListFilters struct {
	Statuses   []Status
	CustomerID string
	Limit      int
	Offset     int
}

// Normalize clamps limit and offset into the allowed range.
func (f ListFilters) Normalize(defaultLimit, maxLimit int) ListFilters {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if maxLimit > 0 && f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether the status passes the filter.
func (f ListFilters) Matches(s Status) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, want := range f.Statuses {
		if want == s {
			return true
		}
	}
	return false
}

// Accepts reports whether o passes the status and owner filters.
func (f ListFilters) Accepts(o Order) bool {
	return f.Matches(o.Status) && (f.CustomerID == "" || o.CustomerID == f.CustomerID)
}

// StatusChange asks the store to move one order to Target.
type StatusChange struct {
	TenantID  string
	OrderID   string
	Target    Status
	ChangedBy string
	Note      string
}

type CreateOrderRequest struct {
	TableNumber    int                `json:"table_number,omitempty"`
	CustomerID     string             `json:"customer_id,omitempty"`
	Items          []OrderItemRequest `json:"items"`
	DiscountAmount decimal.Decimal    `json:"discount_amount"`
	DiscountReason string             `json:"discount_reason,omitempty"`
	TaxAmount      decimal.Decimal    `json:"tax_amount"`
}

type OrderItemRequest struct {
	MenuItemID   string          `json:"menu_item_id"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Instructions string          `json:"instructions,omitempty"`
}

type StatusLog struct {
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
	Note      string    `json:"note,omitempty"`
}

// StatusUpdateMessage is published on every accepted transition.
type StatusUpdateMessage struct {
	TenantID    string    `json:"tenant_id"`
	OrderID     string    `json:"order_id"`
	OrderNumber int64     `json:"order_number"`
	OldStatus   Status    `json:"old_status"`
	NewStatus   Status    `json:"new_status"`
	ChangedBy   string    `json:"changed_by"`
	Timestamp   time.Time `json:"timestamp"`
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"orderboard/internal/lifecycle"
	"orderboard/internal/orderstore/app/core"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/logger"
	"orderboard/pkg/models"
)

type OrderService struct {
	orderRepo core.IOrderRepo
	cache     core.IOrderCache
	publisher core.IPublisher
	params    core.ServiceParams
	mylog     logger.Logger
	now       func() time.Time
}

// NewOrderService wires the service. cache and publisher may be nil.
func NewOrderService(
	orderRepo core.IOrderRepo,
	cache core.IOrderCache,
	publisher core.IPublisher,
	params core.ServiceParams,
	mylog logger.Logger,
) *OrderService {
	if params.DefaultLimit <= 0 {
		params.DefaultLimit = 200
	}
	if params.MaxLimit <= 0 {
		params.MaxLimit = 500
	}
	if params.TransitionRetries < 0 {
		params.TransitionRetries = 0
	}
	return &OrderService{
		orderRepo: orderRepo,
		cache:     cache,
		publisher: publisher,
		params:    params,
		mylog:     mylog,
		now:       time.Now,
	}
}

func (os *OrderService) ListOrders(ctx context.Context, tenantID string, f models.ListFilters) ([]models.Order, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant: %w", apperr.ErrFieldIsEmpty)
	}
	f = f.Normalize(os.params.DefaultLimit, os.params.MaxLimit)

	load := func(ctx context.Context) ([]models.Order, error) {
		return os.orderRepo.List(ctx, tenantID, f)
	}
	if os.cache == nil {
		return load(ctx)
	}

	orders, err := os.cache.GetOrLoad(ctx, tenantID, f, load)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (os *OrderService) GetOrder(ctx context.Context, tenantID, orderID string) (models.Order, error) {
	return os.orderRepo.Get(ctx, tenantID, orderID)
}

func (os *OrderService) History(ctx context.Context, tenantID, orderID string) ([]models.StatusLog, error) {
	return os.orderRepo.History(ctx, tenantID, orderID)
}

// UpdateOrderStatus applies one status change. It is idempotent: asking for
// the status a live order already has returns the order unchanged. Terminal
// orders refuse every target, their own included; callers read that refusal
// through InvalidTransitionError.AlreadyApplied. A change that loses a race
// is re-validated against the new status and retried.
func (os *OrderService) UpdateOrderStatus(ctx context.Context, change models.StatusChange) (models.Order, error) {
	mylog := os.mylog.Action("update_order_status").With("order_id", change.OrderID, "target", change.Target.String())

	if change.OrderID == "" {
		return models.Order{}, fmt.Errorf("order id: %w", apperr.ErrFieldIsEmpty)
	}
	if !change.Target.Valid() {
		return models.Order{}, &lifecycle.InvalidTransitionError{To: change.Target}
	}
	changedBy := change.ChangedBy
	if changedBy == "" {
		changedBy = core.DefaultChangedBy
	}

	for attempt := 0; attempt <= os.params.TransitionRetries; attempt++ {
		cur, err := os.orderRepo.Get(ctx, change.TenantID, change.OrderID)
		if err != nil {
			return models.Order{}, err
		}
		if cur.Status == change.Target && !lifecycle.IsTerminal(cur.Status) {
			mylog.Debug("Status already applied")
			return cur, nil
		}
		if err := lifecycle.Validate(cur.Status, change.Target); err != nil {
			mylog.Warn("Rejected status change", "current", cur.Status.String())
			return models.Order{}, err
		}

		updated, err := os.orderRepo.CompareAndSetStatus(ctx, core.StatusUpdate{
			TenantID:  change.TenantID,
			OrderID:   change.OrderID,
			From:      cur.Status,
			To:        change.Target,
			ChangedBy: changedBy,
			Note:      change.Note,
			At:        os.now(),
		})
		if errors.Is(err, apperr.ErrStatusConflict) {
			mylog.Debug("Concurrent status change, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			mylog.Error("Failed to update order status", err)
			return models.Order{}, err
		}

		os.afterChange(ctx, change.TenantID)
		os.publish(ctx, models.StatusUpdateMessage{
			TenantID:    change.TenantID,
			OrderID:     updated.ID,
			OrderNumber: updated.Number,
			OldStatus:   cur.Status,
			NewStatus:   updated.Status,
			ChangedBy:   changedBy,
			Timestamp:   updated.UpdatedAt,
		})
		mylog.Info("Order status updated", "from", cur.Status.String())
		return updated, nil
	}

	mylog.Warn("Gave up after concurrent status changes", "retries", os.params.TransitionRetries)
	return models.Order{}, apperr.ErrStatusConflict
}

// CreateOrder validates req, computes line and order totals and stores a new PENDING order.
func (os *OrderService) CreateOrder(ctx context.Context, tenantID, changedBy string, req models.CreateOrderRequest) (models.Order, error) {
	mylog := os.mylog.Action("create_order")

	if tenantID == "" {
		return models.Order{}, fmt.Errorf("tenant: %w", apperr.ErrFieldIsEmpty)
	}
	if err := ValidateOrder(req); err != nil {
		return models.Order{}, fmt.Errorf("%w: %w", apperr.ErrInvalidOrder, err)
	}
	if changedBy == "" {
		changedBy = core.DefaultChangedBy
	}

	order := models.Order{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		TableNumber:    req.TableNumber,
		CustomerID:     strings.TrimSpace(req.CustomerID),
		Status:         models.StatusPending,
		DiscountAmount: req.DiscountAmount,
		DiscountReason: req.DiscountReason,
		TaxAmount:      req.TaxAmount,
	}
	subtotal := decimal.Zero
	for _, it := range req.Items {
		line := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		order.Items = append(order.Items, models.OrderItem{
			MenuItemID:   it.MenuItemID,
			Name:         it.Name,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			Subtotal:     line,
			Instructions: it.Instructions,
		})
		subtotal = subtotal.Add(line)
	}
	order.Subtotal = subtotal
	order.Total = subtotal.Sub(req.DiscountAmount).Add(req.TaxAmount)

	created, err := os.orderRepo.Create(ctx, order, changedBy)
	if err != nil {
		mylog.Error("Failed to save order", err)
		return models.Order{}, fmt.Errorf("cannot save order: %w", err)
	}

	os.afterChange(ctx, tenantID)
	os.publish(ctx, models.StatusUpdateMessage{
		TenantID:    tenantID,
		OrderID:     created.ID,
		OrderNumber: created.Number,
		NewStatus:   created.Status,
		ChangedBy:   changedBy,
		Timestamp:   created.CreatedAt,
	})
	mylog.Info("Order created", "order_id", created.ID, "order_number", created.Number)
	return created, nil
}

func (os *OrderService) afterChange(ctx context.Context, tenantID string) {
	if os.cache == nil {
		return
	}
	if err := os.cache.Invalidate(ctx, tenantID); err != nil {
		os.mylog.Action("cache_invalidate_failed").Warn("Failed to invalidate list cache", "tenant_id", tenantID, "error", err.Error())
	}
}

// publish is best effort; the store stays authoritative when the broker is down.
func (os *OrderService) publish(ctx context.Context, msg models.StatusUpdateMessage) {
	if os.publisher == nil {
		return
	}
	if err := os.publisher.PublishStatusUpdate(ctx, msg); err != nil {
		os.mylog.Action("publish_failed").Error("Failed to publish status update", err, "order_id", msg.OrderID)
	}
}

// Package memory is an in-process order repository with the same semantics
// as the postgres one. It backs the store's memory mode and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"orderboard/internal/orderstore/app/core"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/models"
)

type OrderRepo struct {
	mu     sync.RWMutex
	orders map[string]models.Order
	logs   map[string][]models.StatusLog
	seq    map[string]int64
	now    func() time.Time
}

func NewOrderRepo() *OrderRepo {
	return &OrderRepo{
		orders: make(map[string]models.Order),
		logs:   make(map[string][]models.StatusLog),
		seq:    make(map[string]int64),
		now:    time.Now,
	}
}

// WithClock replaces the clock used for timestamps.
func (r *OrderRepo) WithClock(now func() time.Time) *OrderRepo {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	return r
}

func (r *OrderRepo) IsAlive(context.Context) error { return nil }

func (r *OrderRepo) List(_ context.Context, tenantID string, f models.ListFilters) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Order
	for _, o := range r.orders {
		if o.TenantID == tenantID && f.Accepts(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Number < out[j].Number
	})

	if f.Offset >= len(out) {
		return []models.Order{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *OrderRepo) Get(_ context.Context, tenantID, orderID string) (models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return models.Order{}, apperr.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *OrderRepo) Create(_ context.Context, order models.Order, changedBy string) (models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return models.Order{}, apperr.ErrStatusConflict
	}

	now := r.now().UTC().Truncate(time.Microsecond)
	r.seq[order.TenantID]++
	order.Number = r.seq[order.TenantID]
	order.Status = models.StatusPending
	order.CreatedAt = now
	order.UpdatedAt = now

	r.orders[order.ID] = order.Clone()
	r.logs[order.ID] = append(r.logs[order.ID], models.StatusLog{
		OrderID:   order.ID,
		Status:    models.StatusPending,
		ChangedBy: changedBy,
		ChangedAt: now,
	})
	return order, nil
}

func (r *OrderRepo) CompareAndSetStatus(_ context.Context, upd core.StatusUpdate) (models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[upd.OrderID]
	if !ok || o.TenantID != upd.TenantID {
		return models.Order{}, apperr.ErrNotFound
	}
	if o.Status != upd.From {
		return models.Order{}, apperr.ErrStatusConflict
	}

	at := upd.At
	if at.IsZero() {
		at = r.now()
	}
	o.Status = upd.To
	o.UpdatedAt = core.NextUpdatedAt(o.UpdatedAt, at)
	r.orders[o.ID] = o

	r.logs[o.ID] = append(r.logs[o.ID], models.StatusLog{
		OrderID:   o.ID,
		Status:    upd.To,
		ChangedBy: upd.ChangedBy,
		ChangedAt: o.UpdatedAt,
		Note:      upd.Note,
	})
	return o.Clone(), nil
}

func (r *OrderRepo) History(_ context.Context, tenantID, orderID string) ([]models.StatusLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return nil, apperr.ErrNotFound
	}
	out := make([]models.StatusLog, len(r.logs[orderID]))
	copy(out, r.logs[orderID])
	return out, nil
}

// Put stores o as is, bypassing numbering and the status machine. Used to seed fixtures.
func (r *OrderRepo) Put(o models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.Number > r.seq[o.TenantID] {
		r.seq[o.TenantID] = o.Number
	}
	r.orders[o.ID] = o.Clone()
}

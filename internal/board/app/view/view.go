// Package view ties one role-scoped screen together: it authorizes the
// session, polls the store, projects and merges every fetch into the view's
// snapshot, and sends status changes with optimistic feedback.
package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"orderboard/internal/board/app/poller"
	"orderboard/internal/board/app/projector"
	"orderboard/internal/board/app/reconcile"
	"orderboard/internal/lifecycle"
	"orderboard/internal/session"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/logger"
	"orderboard/pkg/models"
)

// Store is the order store as seen by a view.
type Store interface {
	ListOrders(ctx context.Context, tenantID string, f models.ListFilters) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, change models.StatusChange) (models.Order, error)
}

type Options struct {
	Interval     time.Duration
	Timeout      time.Duration
	MaxBackoff   time.Duration
	ReadyGrace   time.Duration
	RetainCycles int
	PageLimit    int
	Filter       projector.Filter

	// OnChange runs after every reconciliation and every fetch failure.
	// Calls are serialized. It must not call Transition or Stop.
	OnChange func(State, []reconcile.Change)

	Now func() time.Time
}

// State is what the rendering layer reads.
type State struct {
	Orders       []models.Order
	ReconciledAt time.Time
	// Loaded is false until the first fetch succeeds.
	Loaded bool
	// Loading reports an outstanding fetch.
	Loading bool
	// Stale means the last fetch failed and Orders come from an earlier one.
	Stale bool
	Err   error
	// Fatal means polling halted, e.g. the session lost access.
	Fatal bool
	Sync  poller.State
}

type View struct {
	sess  session.Session
	kind  projector.Kind
	store Store
	opts  Options
	log   logger.Logger
	sync  *poller.Synchronizer[[]models.Order]

	notifyMu sync.Mutex
	stopped  atomic.Bool

	mu      sync.Mutex
	snap    reconcile.Snapshot
	pending []reconcile.Pending
	loaded  bool
	lastErr error
	fatal   bool
}

// New authorizes sess for kind and prepares the view. No fetch happens
// before Start.
func New(sess session.Session, kind projector.Kind, store Store, opts Options, log logger.Logger) (*View, error) {
	if err := session.Authorize(sess, kind); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("view needs a store")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RetainCycles < 0 {
		opts.RetainCycles = 0
	}
	if log == nil {
		log = logger.NewNop()
	}

	v := &View{
		sess:  sess,
		kind:  kind,
		store: store,
		opts:  opts,
		log:   log.With("view", string(kind), "tenant_id", sess.TenantID()),
	}

	s, err := poller.New[[]models.Order](v.fetch, v, poller.Options{
		Interval:   opts.Interval,
		Timeout:    opts.Timeout,
		MaxBackoff: opts.MaxBackoff,
		Fatal:      apperr.IsAuthorization,
	})
	if err != nil {
		return nil, err
	}
	v.sync = s
	return v, nil
}

func (v *View) Start(ctx context.Context) error {
	v.log.Action("view_started").Info("View mounted", "interval", v.opts.Interval.String())
	return v.sync.Start(ctx)
}

func (v *View) Refresh() bool { return v.sync.Refresh() }
func (v *View) Pause()        { v.sync.Pause() }
func (v *View) Resume()       { v.sync.Resume() }

// Stop halts polling. After Stop returns the snapshot is frozen: no OnChange
// call happens and late fetch or Transition answers are discarded.
func (v *View) Stop() {
	v.sync.Stop()
	v.stopped.Store(true)
	v.notifyMu.Lock()
	v.notifyMu.Unlock() //nolint:staticcheck
	v.log.Action("view_stopped").Info("View unmounted")
}

func (v *View) Stats() poller.Stats { return v.sync.Stats() }

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *View) stateLocked() State {
	orders := make([]models.Order, 0, len(v.snap.Orders))
	for _, o := range v.snap.Orders {
		orders = append(orders, o.Clone())
	}
	return State{
		Orders:       orders,
		ReconciledAt: v.snap.ReconciledAt,
		Loaded:       v.loaded,
		Loading:      v.sync.InFlight(),
		Stale:        v.lastErr != nil && !v.fatal,
		Err:          v.lastErr,
		Fatal:        v.fatal,
		Sync:         v.sync.State(),
	}
}

func (v *View) scope() projector.Scope {
	sc := projector.ScopeFor(v.sess, v.kind, v.opts.Filter)
	sc.ReadyGrace = v.opts.ReadyGrace
	sc.Now = v.opts.Now()
	return sc
}

func (v *View) fetch(ctx context.Context) ([]models.Order, error) {
	sc := v.scope()
	orders, err := v.listAll(ctx, projector.ServerFilters(sc, v.opts.PageLimit))
	if err != nil {
		if apperr.IsAuthorization(err) || errors.Is(err, apperr.ErrTransientFetch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", apperr.ErrTransientFetch, err)
	}
	return projector.Project(orders, sc), nil
}

// listAll walks the store's pages until a short page or a page with nothing
// new. Pages run oldest first, so orders created mid-walk land on a later page.
func (v *View) listAll(ctx context.Context, f models.ListFilters) ([]models.Order, error) {
	if f.Limit <= 0 {
		return v.store.ListOrders(ctx, v.sess.TenantID(), f)
	}

	var all []models.Order
	seen := make(map[string]bool)
	for {
		page, err := v.store.ListOrders(ctx, v.sess.TenantID(), f)
		if err != nil {
			return nil, err
		}
		added := 0
		for _, o := range page {
			if seen[o.ID] {
				continue
			}
			seen[o.ID] = true
			all = append(all, o)
			added++
		}
		if len(page) < f.Limit || added == 0 {
			return all, nil
		}
		f.Offset += len(page)
	}
}

// OnResult merges a successful fetch. It is called by the synchronizer.
func (v *View) OnResult(orders []models.Order) {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()
	if v.stopped.Load() {
		return
	}

	sc := v.scope()
	v.mu.Lock()
	res := reconcile.Merge(v.snap, orders, v.pending, reconcile.Options{
		Now:     sc.Now,
		Visible: sc.Visible,
	})
	v.snap = res.Snapshot
	v.pending = res.Pending
	v.loaded = true
	v.lastErr = nil
	st := v.stateLocked()
	v.mu.Unlock()

	if len(res.Changes) > 0 {
		v.log.Action("view_reconciled").Debug("Snapshot changed", "changes", len(res.Changes), "orders", len(st.Orders))
	}
	v.emit(st, res.Changes)
}

// OnError records a failed fetch. The snapshot is kept either way.
func (v *View) OnError(err error, fatal bool) {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()
	if v.stopped.Load() {
		return
	}

	v.mu.Lock()
	v.lastErr = err
	v.fatal = v.fatal || fatal
	st := v.stateLocked()
	v.mu.Unlock()

	if fatal {
		v.log.Action("view_halted").Error("Polling halted", err)
	} else {
		v.log.Action("fetch_failed").Warn("Showing stale data", "error", err.Error())
	}
	v.emit(st, nil)
}

func (v *View) emit(st State, changes []reconcile.Change) {
	if v.opts.OnChange != nil && !v.stopped.Load() {
		v.opts.OnChange(st, changes)
	}
}

// Transition moves an order to target. Illegal moves from the locally held
// status are rejected without a store call. Otherwise the new status shows
// immediately and is confirmed or undone by the store's answer. A store
// answer that the order is already in target counts as success, and an
// order the store no longer knows is dropped from the view with a zero
// Order and nil error. A stopped view refuses new transitions, and an answer
// arriving after Stop is not applied; both report ErrViewStopped.
func (v *View) Transition(ctx context.Context, orderID string, target models.Status) (models.Order, error) {
	if !target.Valid() {
		return models.Order{}, &lifecycle.InvalidTransitionError{To: target}
	}
	if v.stopped.Load() {
		return models.Order{}, apperr.ErrViewStopped
	}

	var (
		held    models.Order
		pend    *reconcile.Pending
		early   error
		already bool
	)
	ran := v.update(func() []reconcile.Change {
		if v.fatal {
			early = v.lastErr
			return nil
		}
		h, ok := v.snap.Lookup(orderID)
		if !ok {
			return nil
		}
		held = h
		if h.Status == target {
			already = true
			return nil
		}
		if err := lifecycle.Validate(h.Status, target); err != nil {
			early = err
			return nil
		}
		p := reconcile.NewPending(orderID, h.Status, target, v.opts.RetainCycles, v.opts.Now())
		pend = &p
		v.pending = replacePending(v.pending, p)
		next, _ := reconcile.ApplyOptimistic(v.snap, p)
		return v.replaceLocked(next)
	})
	switch {
	case !ran:
		return models.Order{}, apperr.ErrViewStopped
	case early != nil:
		return models.Order{}, early
	case already:
		return held, nil
	}

	log := v.log.With("order_id", orderID, "target", target.String())

	order, err := v.store.UpdateOrderStatus(ctx, models.StatusChange{
		TenantID:  v.sess.TenantID(),
		OrderID:   orderID,
		Target:    target,
		ChangedBy: v.sess.ChangedBy(),
	})
	if v.stopped.Load() {
		log.Action("transition_discarded").Debug("View stopped before the store answered")
		return models.Order{}, apperr.ErrViewStopped
	}

	var ite *lifecycle.InvalidTransitionError
	switch {
	case err == nil:
	case errors.As(err, &ite) && ite.AlreadyApplied():
		if order.ID == "" {
			order = held
			order.Status = target
		}
	case errors.As(err, &ite):
		log.Action("transition_rejected").Warn("Store refused status change", "current", ite.From.String())
		v.update(func() []reconcile.Change {
			if pend == nil {
				return nil
			}
			v.pending = dropPending(v.pending, *pend)
			next, _ := reconcile.Revert(v.snap, *pend)
			return v.replaceLocked(next)
		})
		return models.Order{}, err
	case errors.Is(err, apperr.ErrNotFound):
		log.Action("order_gone").Info("Order no longer exists, removing from view")
		v.update(func() []reconcile.Change {
			v.pending = dropOrder(v.pending, orderID)
			next, _ := reconcile.Without(v.snap, orderID)
			return v.replaceLocked(next)
		})
		return models.Order{}, nil
	default:
		// outcome unknown: a pending change the store never applied expires after RetainCycles fetches
		log.Action("transition_failed").Error("Status change failed", err)
		return models.Order{}, err
	}

	log.Action("transition_applied").Info("Status changed")
	v.sync.Refresh()
	return order, nil
}

// update runs fn with the snapshot locked and emits the changes it returns.
// It reports false without running fn once the view is stopped.
func (v *View) update(fn func() []reconcile.Change) bool {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()
	if v.stopped.Load() {
		return false
	}

	v.mu.Lock()
	changes := fn()
	st := v.stateLocked()
	v.mu.Unlock()

	if len(changes) > 0 {
		v.emit(st, changes)
	}
	return true
}

// replaceLocked installs next, dropping orders the scope no longer shows.
func (v *View) replaceLocked(next reconcile.Snapshot) []reconcile.Change {
	sc := v.scope()
	orders := make([]models.Order, 0, len(next.Orders))
	for _, o := range next.Orders {
		if sc.Visible(o) {
			orders = append(orders, o)
		}
	}
	filtered := reconcile.Snapshot{Orders: orders, ReconciledAt: next.ReconciledAt}
	changes := reconcile.Diff(v.snap, filtered)
	v.snap = filtered
	return changes
}

func replacePending(pending []reconcile.Pending, p reconcile.Pending) []reconcile.Pending {
	out := dropOrder(pending, p.OrderID)
	return append(out, p)
}

// dropPending removes p unless a newer change for the same order replaced it.
func dropPending(pending []reconcile.Pending, p reconcile.Pending) []reconcile.Pending {
	out := make([]reconcile.Pending, 0, len(pending))
	for _, q := range pending {
		if q.OrderID == p.OrderID && q.Target == p.Target {
			continue
		}
		out = append(out, q)
	}
	return out
}

func dropOrder(pending []reconcile.Pending, orderID string) []reconcile.Pending {
	out := make([]reconcile.Pending, 0, len(pending))
	for _, q := range pending {
		if q.OrderID != orderID {
			out = append(out, q)
		}
	}
	return out
}

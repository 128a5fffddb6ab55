// Package reconcile merges a freshly fetched order set into a view's
// previous snapshot.
//
// The authoritative fetch wins, with one exception: a local optimistic
// status change that is still ahead of the fetched status along the
// lifecycle is kept for a bounded number of poll cycles so the screen does
// not flicker back while the store catches up.
package reconcile

import (
	"time"

	"orderboard/internal/lifecycle"
	"orderboard/pkg/models"
)

// Snapshot is the last reconciled, role-filtered order set of a view. It is
// replaced wholesale and never mutated after construction.
type Snapshot struct {
	Orders       []models.Order
	ReconciledAt time.Time
}

func (s Snapshot) Lookup(id string) (models.Order, bool) {
	for _, o := range s.Orders {
		if o.ID == id {
			return o.Clone(), true
		}
	}
	return models.Order{}, false
}

func (s Snapshot) Len() int { return len(s.Orders) }

// Pending is a status change sent to the store whose effect has not been
// observed in a fetch yet.
type Pending struct {
	OrderID string
	Target  models.Status
	// Base is the status held locally when the change was issued.
	Base     models.Status
	IssuedAt time.Time
	// Remaining counts the fetches that may still lag behind Target before
	// the fetched value wins.
	Remaining int
}

func NewPending(orderID string, base, target models.Status, retain int, now time.Time) Pending {
	if retain < 0 {
		retain = 0
	}
	return Pending{
		OrderID:   orderID,
		Target:    target,
		Base:      base,
		IssuedAt:  now,
		Remaining: retain,
	}
}

type ChangeKind int

const (
	Added ChangeKind = iota
	StatusChanged
	Updated
	RemovedFromView
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case StatusChanged:
		return "status_changed"
	case Updated:
		return "updated"
	default:
		return "removed_from_view"
	}
}

type Change struct {
	Kind    ChangeKind
	OrderID string
	// Order is the new record, or the last held one for RemovedFromView.
	Order     models.Order
	OldStatus models.Status
	NewStatus models.Status
}

type Options struct {
	// Now stamps the new snapshot. Zero means time.Now().
	Now time.Time
	// Visible re-applies the view's projection after optimistic overlays.
	// Nil keeps every order.
	Visible func(models.Order) bool
}

type Result struct {
	Snapshot Snapshot
	Changes  []Change
	// Pending holds the optimistic changes still waiting for the store.
	Pending []Pending
}

// Merge reconciles fetched against prev. Merging the same fetch twice with
// no pending changes yields no changes the second time.
func Merge(prev Snapshot, fetched []models.Order, pending []Pending, opts Options) Result {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	byID := make(map[string]Pending, len(pending))
	for _, p := range pending {
		byID[p.OrderID] = p
	}
	held := index(prev.Orders)

	orders := make([]models.Order, 0, len(fetched))
	kept := make([]Pending, 0, len(pending))

	for _, f := range fetched {
		cur := f.Clone()
		p, hasPending := byID[f.ID]

		switch {
		case hasPending:
			delete(byID, f.ID)
			if next, retain := resolve(f.Status, p); retain {
				cur.Status = p.Target
				kept = append(kept, next)
			}

		default:
			// a lagging replica can serve an older version than one already shown
			if h, ok := held[f.ID]; ok && !f.UpdatedAt.IsZero() && f.UpdatedAt.Before(h.UpdatedAt) {
				cur = h.Clone()
			}
		}

		if opts.Visible != nil && !opts.Visible(cur) {
			continue
		}
		orders = append(orders, cur)
	}

	next := Snapshot{Orders: orders, ReconciledAt: now}
	return Result{
		Snapshot: next,
		Changes:  Diff(prev, next),
		Pending:  kept,
	}
}

// resolve decides the fate of a pending change given the fetched status.
func resolve(fetched models.Status, p Pending) (Pending, bool) {
	switch {
	case fetched == p.Target, lifecycle.Reachable(p.Target, fetched):
		// the store caught up or already moved past the target
		return p, false
	case lifecycle.Reachable(fetched, p.Target) && p.Remaining > 0:
		p.Remaining--
		return p, true
	default:
		return p, false
	}
}

// Diff lists what changed between two snapshots: additions and updates in
// next order, then removals in prev order.
func Diff(prev, next Snapshot) []Change {
	held := index(prev.Orders)
	var changes []Change

	seen := make(map[string]struct{}, len(next.Orders))
	for _, o := range next.Orders {
		seen[o.ID] = struct{}{}
		h, ok := held[o.ID]
		switch {
		case !ok:
			changes = append(changes, Change{Kind: Added, OrderID: o.ID, Order: o.Clone(), NewStatus: o.Status})
		case h.Status != o.Status:
			changes = append(changes, Change{
				Kind:      StatusChanged,
				OrderID:   o.ID,
				Order:     o.Clone(),
				OldStatus: h.Status,
				NewStatus: o.Status,
			})
		case !h.Equal(o):
			changes = append(changes, Change{Kind: Updated, OrderID: o.ID, Order: o.Clone(), OldStatus: h.Status, NewStatus: o.Status})
		}
	}

	for _, h := range prev.Orders {
		if _, ok := seen[h.ID]; !ok {
			changes = append(changes, Change{Kind: RemovedFromView, OrderID: h.ID, Order: h.Clone(), OldStatus: h.Status})
		}
	}
	return changes
}

// ApplyOptimistic shows p.Target on the held order right away. The snapshot
// is returned unchanged when the order is not held.
func ApplyOptimistic(s Snapshot, p Pending) (Snapshot, []Change) {
	return withStatus(s, p.OrderID, p.Target, p.Target)
}

// Revert undoes ApplyOptimistic if the held order still shows p.Target.
func Revert(s Snapshot, p Pending) (Snapshot, []Change) {
	return withStatus(s, p.OrderID, p.Target, p.Base)
}

// Without drops an order from the snapshot, reporting it as removed from view.
func Without(s Snapshot, orderID string) (Snapshot, []Change) {
	orders := make([]models.Order, 0, len(s.Orders))
	for _, o := range s.Orders {
		if o.ID != orderID {
			orders = append(orders, o.Clone())
		}
	}
	next := Snapshot{Orders: orders, ReconciledAt: s.ReconciledAt}
	return next, Diff(s, next)
}

func withStatus(s Snapshot, orderID string, only, status models.Status) (Snapshot, []Change) {
	orders := make([]models.Order, 0, len(s.Orders))
	for _, o := range s.Orders {
		c := o.Clone()
		if c.ID == orderID && (only == status || c.Status == only) {
			c.Status = status
		}
		orders = append(orders, c)
	}
	next := Snapshot{Orders: orders, ReconciledAt: s.ReconciledAt}
	return next, Diff(s, next)
}

func index(orders []models.Order) map[string]models.Order {
	m := make(map[string]models.Order, len(orders))
	for _, o := range orders {
		m[o.ID] = o
	}
	return m
}

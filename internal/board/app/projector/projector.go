// Package projector derives what a role-scoped screen may see from the raw
// order set returned by the store.
package projector

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"orderboard/internal/session"
	"orderboard/pkg/models"
)

type Kind = session.View

const (
	Kitchen   = session.ViewKitchen
	Server    = session.ViewServer
	Admin     = session.ViewAdmin
	Customer  = session.ViewCustomer
	Cancelled = session.ViewCancelled
)

// Filter carries the optional admin predicates.
type Filter struct {
	Statuses    []models.Status
	CreatedFrom time.Time
	CreatedTo   time.Time
	Search      string
}

type Scope struct {
	Kind       Kind
	TenantID   string
	CustomerID string
	Tables     []int

	Statuses    []models.Status
	CreatedFrom time.Time
	CreatedTo   time.Time
	Search      string

	// ReadyGrace keeps READY orders on the kitchen screen for a while after
	// they were marked ready.
	ReadyGrace time.Duration
	// Now is the reference time for ReadyGrace. Zero means time.Now().
	Now time.Time
}

// ScopeFor builds the scope a session gets for kind. Admin predicates in f
// are ignored for every other kind.
func ScopeFor(sess session.Session, kind Kind, f Filter) Scope {
	sc := Scope{
		Kind:     kind,
		TenantID: sess.TenantID(),
	}
	switch kind {
	case Server:
		sc.Tables = sess.Tables()
	case Customer:
		sc.CustomerID = sess.CustomerID()
	case Admin:
		sc.Statuses = append([]models.Status(nil), f.Statuses...)
		sc.CreatedFrom = f.CreatedFrom
		sc.CreatedTo = f.CreatedTo
		sc.Search = strings.TrimSpace(f.Search)
	}
	return sc
}

// Project returns the orders visible under sc as a fresh slice of copies.
// It never mutates orders and never returns nil.
func Project(orders []models.Order, sc Scope) []models.Order {
	out := make([]models.Order, 0, len(orders))
	if sc.TenantID == "" {
		return out
	}
	if sc.Kind == Customer && sc.CustomerID == "" {
		return out
	}

	now := sc.Now
	if now.IsZero() {
		now = time.Now()
	}

	for _, o := range orders {
		if o.TenantID != sc.TenantID || !sc.visible(o, now) {
			continue
		}
		c := o.Clone()
		if sc.Kind == Kitchen {
			stripMoney(&c)
		}
		out = append(out, c)
	}

	sortFor(sc.Kind, out)
	return out
}

// Visible reports whether a single order passes sc.
func (sc Scope) Visible(o models.Order) bool {
	if sc.TenantID == "" || o.TenantID != sc.TenantID {
		return false
	}
	if sc.Kind == Customer && sc.CustomerID == "" {
		return false
	}
	now := sc.Now
	if now.IsZero() {
		now = time.Now()
	}
	return sc.visible(o, now)
}

func (sc Scope) visible(o models.Order, now time.Time) bool {
	switch sc.Kind {
	case Kitchen:
		switch o.Status {
		case models.StatusPending, models.StatusPreparing:
			return true
		case models.StatusReady:
			return sc.ReadyGrace > 0 && now.Sub(o.UpdatedAt) <= sc.ReadyGrace
		}
		return false

	case Server:
		if o.Status != models.StatusReady && o.Status != models.StatusServed {
			return false
		}
		return len(sc.Tables) == 0 || containsInt(sc.Tables, o.TableNumber)

	case Admin:
		if len(sc.Statuses) > 0 && !containsStatus(sc.Statuses, o.Status) {
			return false
		}
		if !sc.CreatedFrom.IsZero() && o.CreatedAt.Before(sc.CreatedFrom) {
			return false
		}
		if !sc.CreatedTo.IsZero() && !o.CreatedAt.Before(sc.CreatedTo) {
			return false
		}
		return sc.Search == "" || matchesSearch(o, sc.Search)

	case Customer:
		return o.CustomerID == sc.CustomerID

	case Cancelled:
		return o.Status == models.StatusCancelled
	}
	return false
}

// ServerFilters narrows the store query to the statuses kind can show. The
// result is a load hint; Project still applies the full rules.
func ServerFilters(sc Scope, limit int) models.ListFilters {
	f := models.ListFilters{Limit: limit}
	switch sc.Kind {
	case Kitchen:
		f.Statuses = []models.Status{models.StatusPending, models.StatusPreparing}
		if sc.ReadyGrace > 0 {
			f.Statuses = append(f.Statuses, models.StatusReady)
		}
	case Server:
		f.Statuses = []models.Status{models.StatusReady, models.StatusServed}
	case Cancelled:
		f.Statuses = []models.Status{models.StatusCancelled}
	case Customer:
		f.CustomerID = sc.CustomerID
	case Admin:
		f.Statuses = append([]models.Status(nil), sc.Statuses...)
	}
	return f
}

func stripMoney(o *models.Order) {
	o.Subtotal = decimal.Zero
	o.DiscountAmount = decimal.Zero
	o.DiscountReason = ""
	o.TaxAmount = decimal.Zero
	o.Total = decimal.Zero
	for i := range o.Items {
		o.Items[i].UnitPrice = decimal.Zero
		o.Items[i].Subtotal = decimal.Zero
	}
}

func sortFor(kind Kind, orders []models.Order) {
	oldestFirst := kind == Kitchen || kind == Server
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if oldestFirst {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if oldestFirst {
			return a.Number < b.Number
		}
		return a.Number > b.Number
	})
}

func matchesSearch(o models.Order, q string) bool {
	q = strings.ToLower(q)
	if strings.Contains(strings.ToLower(o.ID), q) ||
		strings.Contains(strings.ToLower(o.CustomerID), q) ||
		strings.Contains(strconv.FormatInt(o.Number, 10), q) {
		return true
	}
	for _, it := range o.Items {
		if strings.Contains(strings.ToLower(it.Name), q) {
			return true
		}
	}
	return false
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsStatus(xs []models.Status, v models.Status) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

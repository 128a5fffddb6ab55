package core

import (
	"context"
	"time"

	"orderboard/pkg/models"
)

// StatusUpdate is a compare-and-set request: the row moves to To only if it
// is still in From.
type StatusUpdate struct {
	TenantID  string
	OrderID   string
	From      models.Status
	To        models.Status
	ChangedBy string
	Note      string
	At        time.Time
}

type IOrderRepo interface {
	List(ctx context.Context, tenantID string, f models.ListFilters) ([]models.Order, error)
	// Get returns apperr.ErrNotFound for unknown ids and for ids of another tenant.
	Get(ctx context.Context, tenantID, orderID string) (models.Order, error)
	// Create stores a PENDING order and assigns the next per-tenant number.
	Create(ctx context.Context, order models.Order, changedBy string) (models.Order, error)
	// CompareAndSetStatus returns apperr.ErrStatusConflict when the order left
	// From in the meantime. UpdatedAt always moves forward.
	CompareAndSetStatus(ctx context.Context, upd StatusUpdate) (models.Order, error)
	History(ctx context.Context, tenantID, orderID string) ([]models.StatusLog, error)
	IsAlive(ctx context.Context) error
}

// NextUpdatedAt returns the last-updated stamp for an accepted change. It is
// strictly after prev even when the clock stalls or steps back. Microsecond
// steps match the resolution of a postgres timestamptz.
func NextUpdatedAt(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}

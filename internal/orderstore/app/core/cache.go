package core

import (
	"context"

	"orderboard/pkg/models"
)

type LoadFunc func(ctx context.Context) ([]models.Order, error)

// IOrderCache is a read-through cache for list queries.
type IOrderCache interface {
	GetOrLoad(ctx context.Context, tenantID string, f models.ListFilters, load LoadFunc) ([]models.Order, error)
	Invalidate(ctx context.Context, tenantID string) error
}

// Package cache keeps short-lived copies of list queries in redis.
//
// Keys embed a per-tenant version; every accepted write bumps the version,
// so readers never see a list older than the last write they could observe.
// Concurrent misses for the same key share one load.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"orderboard/internal/orderstore/app/core"
	"orderboard/pkg/logger"
	"orderboard/pkg/models"
)

const keyPrefix = "orderboard:orders"

type OrderCache struct {
	rdb   redis.UniversalClient
	ttl   time.Duration
	group singleflight.Group
	mylog logger.Logger
}

func NewOrderCache(rdb redis.UniversalClient, ttl time.Duration, mylog logger.Logger) *OrderCache {
	return &OrderCache{rdb: rdb, ttl: ttl, mylog: mylog}
}

var _ core.IOrderCache = (*OrderCache)(nil)

// GetOrLoad serves f from redis when possible. Redis failures fall back to
// load, so the cache never makes the store unavailable.
func (c *OrderCache) GetOrLoad(ctx context.Context, tenantID string, f models.ListFilters, load core.LoadFunc) ([]models.Order, error) {
	mylog := c.mylog.Action("order_cache")

	ver, err := c.version(ctx, tenantID)
	if err != nil {
		mylog.Warn("Cache unavailable, loading directly", "error", err.Error())
		return load(ctx)
	}
	key := listKey(tenantID, ver, f)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var orders []models.Order
		if err := json.Unmarshal(raw, &orders); err == nil {
			return orders, nil
		}
		mylog.Warn("Dropping unreadable cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		mylog.Warn("Cache read failed, loading directly", "error", err.Error())
		return load(ctx)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		orders, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(orders); err == nil {
			if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
				mylog.Warn("Cache write failed", "error", err.Error())
			}
		}
		return orders, nil
	})
	if err != nil {
		return nil, err
	}

	// Shared results must not alias between callers.
	shared := v.([]models.Order)
	out := make([]models.Order, len(shared))
	for i, o := range shared {
		out[i] = o.Clone()
	}
	return out, nil
}

func (c *OrderCache) Invalidate(ctx context.Context, tenantID string) error {
	if err := c.rdb.Incr(ctx, versionKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("bump cache version: %w", err)
	}
	return nil
}

func (c *OrderCache) version(ctx context.Context, tenantID string) (int64, error) {
	ver, err := c.rdb.Get(ctx, versionKey(tenantID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

func versionKey(tenantID string) string {
	return keyPrefix + ":" + tenantID + ":ver"
}

func listKey(tenantID string, ver int64, f models.ListFilters) string {
	statuses := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		statuses[i] = string(s)
	}
	return strings.Join([]string{
		keyPrefix,
		tenantID,
		"v" + strconv.FormatInt(ver, 10),
		strings.Join(statuses, ","),
		"c" + f.CustomerID,
		strconv.Itoa(f.Limit),
		strconv.Itoa(f.Offset),
	}, ":")
}

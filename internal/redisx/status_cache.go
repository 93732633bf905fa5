package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/furniture-orders/internal/orders"
	"github.com/redis/go-redis/v9"
)

// TrackedStatus is the cached view served by the tracking endpoint.
type TrackedStatus struct {
	OrderID     string        `json:"id"`
	OrderNumber string        `json:"orderNumber"`
	UserID      string        `json:"user"`
	Status      orders.Status `json:"orderStatus"`
	Deleted     bool          `json:"isDeleted,omitempty"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

type StatusCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStatusCache(rdb redis.Cmdable) *StatusCache {
	return &StatusCache{rdb: rdb, ttl: TTLStatusCache}
}

// SetStatus caches the order under both its id and its number.
func (c *StatusCache) SetStatus(ctx context.Context, o *orders.Order) error {
	b, err := json.Marshal(TrackedStatus{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Status:      o.Status,
		Deleted:     o.IsDeleted,
		UpdatedAt:   o.UpdatedAt,
	})
	if err != nil {
		return err
	}
	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, fmt.Sprintf(KeyOrderStatus, o.ID), b, c.ttl)
		if o.OrderNumber != "" {
			p.Set(ctx, fmt.Sprintf(KeyOrderStatus, o.OrderNumber), b, c.ttl)
		}
		return nil
	})
	return err
}

// GetStatus returns the cached status for an order id or number; ok is false on a miss.
func (c *StatusCache) GetStatus(ctx context.Context, ref string) (TrackedStatus, bool, error) {
	var ts TrackedStatus
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, ref)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ts, false, nil
	}
	if err != nil {
		return ts, false, err
	}
	if err := json.Unmarshal(b, &ts); err != nil {
		return ts, false, err
	}
	return ts, true, nil
}

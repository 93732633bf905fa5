package redisx

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
)

// LowStockSet tracks product ids whose stock is at or below their threshold.
type LowStockSet struct {
	rdb redis.Cmdable
}

func NewLowStockSet(rdb redis.Cmdable) *LowStockSet {
	return &LowStockSet{rdb: rdb}
}

// Flag adds the product and reports whether it was newly added.
func (s *LowStockSet) Flag(ctx context.Context, productID string) (bool, error) {
	n, err := s.rdb.SAdd(ctx, KeyLowStock, productID).Result()
	return n > 0, err
}

// Clear removes the product and reports whether it had been flagged.
func (s *LowStockSet) Clear(ctx context.Context, productID string) (bool, error) {
	n, err := s.rdb.SRem(ctx, KeyLowStock, productID).Result()
	return n > 0, err
}

// Members returns the flagged product ids, sorted.
func (s *LowStockSet) Members(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, KeyLowStock).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

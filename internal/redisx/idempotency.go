package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInFlight means another request holding the same idempotency key has not finished yet.
var ErrInFlight = errors.New("idempotency: request in progress")

const pendingMarker = "\x00pending"

type Idempotency struct {
	rdb     redis.Cmdable
	ttl     time.Duration
	pending time.Duration
}

func NewIdempotency(rdb redis.Cmdable) *Idempotency {
	return &Idempotency{rdb: rdb, ttl: TTLIdempotency, pending: TTLIdempotencyPending}
}

func idemKey(userID, key string) string {
	return fmt.Sprintf(KeyIdemOrderCreate, userID, key)
}

// Claim reserves the key with SETNX for the short pending window. When the key was already
// completed it returns the stored response and claimed=false; a key still pending yields ErrInFlight.
func (i *Idempotency) Claim(ctx context.Context, userID, key string) (stored []byte, claimed bool, err error) {
	ok, err := i.rdb.SetNX(ctx, idemKey(userID, key), pendingMarker, i.pending).Result()
	if err != nil {
		return nil, false, err
	}
	if ok {
		return nil, true, nil
	}
	b, err := i.rdb.Get(ctx, idemKey(userID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls
		return i.Claim(ctx, userID, key)
	}
	if err != nil {
		return nil, false, err
	}
	if string(b) == pendingMarker {
		return nil, false, ErrInFlight
	}
	return b, false, nil
}

// Complete stores the response for a claimed key and extends it to the full TTL.
func (i *Idempotency) Complete(ctx context.Context, userID, key string, response []byte) error {
	return i.rdb.Set(ctx, idemKey(userID, key), response, i.ttl).Err()
}

// Release frees a claimed key after a failed request so the client can retry.
func (i *Idempotency) Release(ctx context.Context, userID, key string) error {
	return i.rdb.Del(ctx, idemKey(userID, key)).Err()
}

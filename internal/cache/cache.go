package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Store is the shared key/value + bitmap surface the read path, the bloom
// filter and the follower feeds all sit on. In production this is Redis;
// tests and single-node deployments use the in-memory implementation.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// Set writes a value; ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SetBit(ctx context.Context, key string, offset int64) error
	GetBit(ctx context.Context, key string, offset int64) (bool, error)
}

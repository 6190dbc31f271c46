package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Dedup remembers delivered idempotency keys for ttl.
// A key is written only after delivery succeeded, so a crash mid-delivery leaves no mark
// and the redelivered task is sent again.
type Dedup struct {
	c      *redis.Client
	prefix string
}

func NewDedup(c *redis.Client, prefix string) *Dedup {
	if prefix == "" {
		prefix = "dedup:"
	}
	return &Dedup{c: c, prefix: prefix}
}

func (d *Dedup) Delivered(ctx context.Context, key string) (bool, error) {
	n, err := d.c.Exists(ctx, d.prefix+key).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis dedup lookup")
	}
	return n > 0, nil
}

func (d *Dedup) MarkDelivered(ctx context.Context, key string, ttl time.Duration) error {
	if err := d.c.Set(ctx, d.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return errors.Wrap(err, "redis dedup mark")
	}
	return nil
}

package rediscache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token,
// so an expired lock re-acquired by another worker is not released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is an advisory lock keyed by an arbitrary string (a shipment ID in practice).
// It keeps several engine instances from calling upstream for the same shipment at once.
type Locker struct {
	c      *redis.Client
	prefix string
}

func NewLocker(c *redis.Client, prefix string) *Locker {
	if prefix == "" {
		prefix = "lock:"
	}
	return &Locker{c: c, prefix: prefix}
}

// TryLock returns ok=false if someone else holds the key. release is non-nil only when ok.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error) {
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}
	k := l.prefix + key
	ok, err = l.c.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, "redis lock")
	}
	if !ok {
		return nil, false, nil
	}
	release = func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.c, []string{k}, token).Err(); err != nil && err != redis.Nil {
			return errors.Wrap(err, "redis unlock")
		}
		return nil
	}
	return release, true, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "lock token")
	}
	return hex.EncodeToString(b), nil
}

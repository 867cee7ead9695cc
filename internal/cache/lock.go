package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a single-key distributed lock used to keep periodic jobs on one
// instance at a time.
type Locker struct {
	rdb *redis.Client
}

func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

func lockKey(name string) string {
	return KeyPrefix + "lock:" + name
}

// AcquireLock reports whether the lock was taken. The lock expires after ttl
// if the holder dies.
func (l *Locker) AcquireLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, lockKey(name), token, ttl).Result()
}

func (l *Locker) ReleaseLock(ctx context.Context, name, token string) error {
	return releaseScript.Run(ctx, l.rdb, []string{lockKey(name)}, token).Err()
}

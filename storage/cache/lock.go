// Package cache holds the redis backed helpers shared by the app instances.
package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/feedback"
)

const lockRetryDelay = 25 * time.Millisecond

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a feedback.Locker shared by every instance connected to the same redis.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger core.Logger
}

var _ feedback.Locker = (*Locker)(nil) // interface compliance check

func NewClient(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
}

func NewLocker(client *redis.Client, conf *core.Config, logger core.Logger) *Locker {
	return &Locker{client: client, ttl: conf.Redis.LockTTL, wait: conf.Redis.LockWait, logger: logger}
}

// Lock retries SET NX until it gets the key or the wait elapses.
// The key expires after ttl so a crashed holder cannot block a user forever.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, "acquiring lock")
		}
		if ok {
			return func() {
				// the trigger context may be cancelled by now
				if err := releaseScript.Run(context.Background(), l.client, []string{key}, token).Err(); err != nil {
					l.logger.Error("releasing lock "+key, err)
				}
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, feedback.ErrLockTimeout
		}
		select {
		case <-time.After(lockRetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

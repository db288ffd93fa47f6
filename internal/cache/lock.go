package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// unlockScript deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Mutex is a best-effort lock shared by every replica pointed at the same Redis.
type Mutex struct {
	Redis *Redis
	Key   string
	TTL   time.Duration
}

func NewMutex(r *Redis, key string, ttl time.Duration) *Mutex {
	return &Mutex{Redis: r, Key: key, TTL: ttl}
}

// TryLock returns ok=false without error when another holder owns the lock.
func (m *Mutex) TryLock(ctx context.Context) (unlock func(context.Context) error, ok bool, err error) {
	token := uuid.NewString()
	ok, err = m.Redis.SetNX(ctx, m.Key, token, m.TTL).Result()
	if err != nil {
		return nil, false, errors.Wrapf(err, "error acquiring lock: %s", m.Key)
	}
	if !ok {
		return nil, false, nil
	}
	unlock = func(ctx context.Context) error {
		_, err := unlockScript.Run(ctx, m.Redis.Client, []string{m.Key}, token).Result()
		return errors.Wrapf(err, "error releasing lock: %s", m.Key)
	}
	return unlock, true, nil
}

package guard

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/warp/reconciliation-engine/generic"
)

// KeyPrefix namespaces guard keys in a shared Redis.
const KeyPrefix = "recon:inflight:"

// Redis is a guard shared by every process using the same Redis. The lock
// expires after TTL so a crashed holder does not wedge a key.
type Redis struct {
	TTL    time.Duration
	locker *redislock.Client
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{TTL: ttl, locker: redislock.New(client)}
}

func (r *Redis) Acquire(ctx context.Context, key string) (Lease, error) {
	lock, err := r.locker.Obtain(ctx, KeyPrefix+key, r.TTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, &generic.DuplicateInFlightError{Key: key}
	}
	if err != nil {
		return nil, &generic.StoreError{Op: "guard acquire", Err: err}
	}
	return redisLease{lock: lock}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (l redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		// Expired or taken over; nothing left to clear.
		return nil
	}
	return err
}

// Ping checks the Redis connection. Used at startup.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	return client.Ping(ctx).Err()
}

package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	lockPrefix = "deposit_lock:"
	lockTTL    = 30 * time.Second
)

// DepositLock serializes concurrent reconciliation of the same deposit
// id. Callback delivery and status polling can race for one deposit;
// whichever acquires the lock applies the transition, the loser retries
// or observes the already-applied result.
type DepositLock struct {
	client *redis.Client
}

func NewDepositLock(client *redis.Client) *DepositLock {
	return &DepositLock{client: client}
}

// Acquire takes the lock for a deposit id. It returns false when
// another worker already holds it.
func (l *DepositLock) Acquire(ctx context.Context, depositID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockPrefix+depositID, "locked", lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire deposit lock: %w", err)
	}
	return ok, nil
}

// Release frees the lock. Releasing an unheld lock is a no-op.
func (l *DepositLock) Release(ctx context.Context, depositID string) error {
	if err := l.client.Del(ctx, lockPrefix+depositID).Err(); err != nil {
		return fmt.Errorf("failed to release deposit lock: %w", err)
	}
	return nil
}

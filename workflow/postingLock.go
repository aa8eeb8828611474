package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"github.com/bsm/redislock"
	"gorm.io/gorm"
)

// AcquirePostingLock serializes posting per aggregate using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the posting transaction.
func AcquirePostingLock(tx *gorm.DB, kind models.AggregateKind, aggregateId int) error {
	lockName := fmt.Sprintf("posting:%s:%d", kind, aggregateId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for %s #%d", kind, aggregateId)
	}
	return nil
}

func ReleasePostingLock(tx *gorm.DB, kind models.AggregateKind, aggregateId int) {
	lockName := fmt.Sprintf("posting:%s:%d", kind, aggregateId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// acquireCrossInstanceLock takes the redis lock for the aggregate when a
// lock client is configured. Returns nil when redis is absent (dev/test);
// the MySQL advisory lock still serializes within the database.
func acquireCrossInstanceLock(ctx context.Context, kind models.AggregateKind, aggregateId int) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}
	key := fmt.Sprintf("posting-lock:%s:%d", kind, aggregateId)
	lock, err := locker.Obtain(ctx, key, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(200*time.Millisecond), 10),
	})
	if err != nil {
		return nil, fmt.Errorf("could not obtain redis posting lock for %s #%d: %w", kind, aggregateId, err)
	}
	return lock, nil
}

func releaseCrossInstanceLock(ctx context.Context, lock *redislock.Lock) {
	if lock == nil {
		return
	}
	_ = lock.Release(ctx)
}

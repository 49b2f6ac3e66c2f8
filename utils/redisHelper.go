package utils

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/sirupsen/logrus"
)

// BestEffortLock serializes a critical section across instances when Redis is available.
// Reliability never depends on it: callers keep their DB-level guarantees (unique
// indexes, CAS updates). The returned release func is always safe to call.
func BestEffortLock(ctx context.Context, key string, ttl time.Duration, funcName string) func() {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}
	}
	lock, err := locker.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 20),
	})
	if err != nil {
		msg := "error obtaining redis lock; proceeding without redis lock"
		if errors.Is(err, redislock.ErrNotObtained) {
			msg = "could not obtain redis lock; proceeding without redis lock"
		}
		logger.WithFields(logrus.Fields{
			"field":    funcName,
			"lock_key": key,
		}).Warn(msg + ": " + err.Error())
		return func() {}
	}
	return func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			logger.WithFields(logrus.Fields{
				"field":    funcName,
				"lock_key": key,
			}).Warn("failed to release redis lock: " + releaseErr.Error())
		}
	}
}

package utils

import (
	"context"
	"errors"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/batchlink_backend/config"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// ErrLockHeld is returned when another instance holds the lock.
var ErrLockHeld = errors.New("lock is held by another import")

// ObtainLock takes a Redis lock and returns its release func.
// Without Redis the lock is skipped; row ordering is still kept by the single
// sequential import loop, so only cross-instance exclusion is lost.
func ObtainLock(ctx context.Context, key string, ttl time.Duration, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": functionName,
		"lock":     key,
	}
	if src, ok := GetSourceFileFromContext(ctx); ok {
		fields["source_file"] = src
	}
	locker := config.GetRedisLock()
	if locker == nil {
		logger.WithFields(fields).Warn("redis lock not ready; proceeding without redis lock")
		return func() {}, nil
	}

	lock, err := locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		logger.WithFields(fields).Warn("import lock held by another instance")
		return nil, ErrLockHeld
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock", key, err)
		return nil, err
	}

	stop := keepLockAlive(lock, ttl, func(err error) {
		config.LogError(logger, moduleName, functionName, "Error refreshing lock", key, err)
	})
	return func() {
		stop()
		// the request context may already be cancelled here
		if releaseErr := lock.Release(context.Background()); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			config.LogError(logger, moduleName, functionName, "Error releasing lock", key, releaseErr)
		}
	}, nil
}

type lockRefresher interface {
	Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error
}

// keepLockAlive extends the lock every ttl/2 until the returned stop func is
// called. Refreshing ends after the first failure, since the lock is then lost.
func keepLockAlive(lock lockRefresher, ttl time.Duration, onErr func(error)) func() {
	interval := ttl / 2
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := lock.Refresh(context.Background(), ttl, nil); err != nil {
					onErr(err)
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-stopped
		})
	}
}

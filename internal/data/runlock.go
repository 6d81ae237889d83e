package data

import (
	"context"
	"fmt"
	"time"

	"generation-service/internal/biz"
	"generation-service/internal/constants"
	"generation-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
)

// runLocker 基于 redsync 的单任务互斥锁，实现 biz.RunLocker 接口
// 服务进程与恢复扫描可能同时对一个任务发起执行，锁保证同一时刻只有一个执行器
type runLocker struct {
	sync    *redsync.Redsync
	log     *log.Helper
	metrics *metrics.GenerationMetrics
}

// NewRunLocker 创建任务锁（返回 biz.RunLocker 接口）
func NewRunLocker(sync *redsync.Redsync, logger log.Logger) biz.RunLocker {
	return &runLocker{
		sync:    sync,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// Acquire 获取任务锁，成功返回释放函数
func (l *runLocker) Acquire(ctx context.Context, jobID string) (func(), error) {
	lockKey := fmt.Sprintf("%s%s", constants.RedisKeyRunnerLock, jobID)
	lockStartTime := time.Now()
	mutex := l.sync.NewMutex(lockKey,
		redsync.WithExpiry(constants.RunnerLockExpiry),
		redsync.WithTries(1),
	)
	if err := mutex.LockContext(ctx); err != nil {
		if l.metrics != nil {
			l.metrics.LockAcquireTotal.WithLabelValues(constants.LockResultFailed).Inc()
			l.metrics.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())
		}
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if l.metrics != nil {
		l.metrics.LockAcquireTotal.WithLabelValues(constants.LockResultSuccess).Inc()
		l.metrics.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())
	}

	// 长任务需要周期续期，轮询周期远短于锁过期时间
	extendCtx, extendCancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(constants.RunnerLockExpiry / 3)
		defer ticker.Stop()
		for {
			select {
			case <-extendCtx.Done():
				return
			case <-ticker.C:
				if ok, err := mutex.Extend(); !ok || err != nil {
					l.log.Warnf("failed to extend run lock: job_id=%s, error=%v", jobID, err)
					return
				}
			}
		}
	}()

	release := func() {
		extendCancel()
		if ok, err := mutex.Unlock(); !ok || err != nil {
			l.log.Warnf("failed to unlock run lock: job_id=%s, error=%v", jobID, err)
		}
	}
	return release, nil
}

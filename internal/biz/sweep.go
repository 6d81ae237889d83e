package biz

import (
	"context"
	"time"

	"generation-service/internal/conf"
	"generation-service/internal/constants"
	genErrors "generation-service/internal/errors"
	"generation-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// SweepConfig 恢复扫描配置
type SweepConfig struct {
	GracePeriod time.Duration
}

// NewSweepConfig 从配置创建扫描配置
func NewSweepConfig(c *conf.Bootstrap) *SweepConfig {
	cfg := &SweepConfig{GracePeriod: constants.DefaultSweepGracePeriod}
	if c != nil && c.Sweeper != nil && c.Sweeper.GracePeriodSeconds > 0 {
		cfg.GracePeriod = time.Duration(c.Sweeper.GracePeriodSeconds) * time.Second
	}
	return cfg
}

// SweepUseCase 恢复扫描：处理进程崩溃遗留的中间态任务
//
// 两类遗留：
//  1. 创建后从未提交的 QUEUED 任务，重新调度执行
//  2. 超过总超时仍未终态的在途任务，按超时退款
//
// 两条路径都经过单任务锁与终态保护，和在线执行器并发安全
type SweepUseCase struct {
	repo       GenerationRepo
	gen        *GenerationUseCase
	dispatcher *Dispatcher
	cfg        *SweepConfig
	log        *log.Helper
	metrics    *metrics.GenerationMetrics
}

// NewSweepUseCase 创建恢复扫描用例
func NewSweepUseCase(
	repo GenerationRepo,
	gen *GenerationUseCase,
	dispatcher *Dispatcher,
	cfg *SweepConfig,
	logger log.Logger,
) *SweepUseCase {
	return &SweepUseCase{
		repo:       repo,
		gen:        gen,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log.NewHelper(logger),
		metrics:    metrics.GetMetrics(),
	}
}

// Sweep 执行一轮扫描
func (uc *SweepUseCase) Sweep(ctx context.Context) error {
	if err := uc.requeueStuck(ctx); err != nil {
		return err
	}
	return uc.expireRunning(ctx)
}

// requeueStuck 重新调度宽限期之前创建、仍停留在 QUEUED 的任务
func (uc *SweepUseCase) requeueStuck(ctx context.Context) error {
	cutoff := time.Now().Add(-uc.cfg.GracePeriod)
	jobs, err := uc.repo.ListStuckQueued(ctx, cutoff)
	if err != nil {
		uc.log.WithContext(ctx).Errorf("sweep list stuck queued failed: error=%v", err)
		return err
	}
	for _, job := range jobs {
		uc.log.WithContext(ctx).Infof("sweep requeue: job_id=%s, created_at=%s", job.GenerationJobID, job.CreatedAt.Format(time.RFC3339))
		uc.dispatcher.Dispatch(job.GenerationJobID)
		if uc.metrics != nil {
			uc.metrics.SweepRequeuedTotal.Inc()
		}
	}
	return nil
}

// expireRunning 对超过总超时的在途任务执行受保护的超时退款
func (uc *SweepUseCase) expireRunning(ctx context.Context) error {
	cutoff := time.Now().Add(-uc.gen.runner.TotalTimeout - uc.cfg.GracePeriod)
	jobs, err := uc.repo.ListExpiredRunning(ctx, cutoff)
	if err != nil {
		uc.log.WithContext(ctx).Errorf("sweep list expired running failed: error=%v", err)
		return err
	}
	for _, job := range jobs {
		err := uc.gen.RefundJob(ctx, job, constants.TimeoutErrorMessage, StatusFailed)
		if err != nil {
			if genErrors.IsJobAlreadyTerminal(err) {
				continue
			}
			uc.log.WithContext(ctx).Errorf("sweep refund failed: job_id=%s, error=%v", job.GenerationJobID, err)
			continue
		}
		uc.log.WithContext(ctx).Warnf("sweep expired job refunded: job_id=%s", job.GenerationJobID)
		if uc.metrics != nil {
			uc.metrics.SweepExpiredTotal.Inc()
		}
	}
	return nil
}

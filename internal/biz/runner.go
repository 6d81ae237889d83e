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

// RunLocker 单任务互斥锁（定义在 biz 层，数据层基于 redsync 实现）
// 同一任务的执行协议在任意时刻只允许一个执行器驱动，
// 用于隔离服务进程与恢复扫描进程的并发
type RunLocker interface {
	// Acquire 获取任务锁；成功返回释放函数，锁被占用时返回错误
	Acquire(ctx context.Context, jobID string) (release func(), err error)
}

// 默认的提供商队列基础地址
const defaultProviderBase = "https://queue.fal.run"

// RunnerConfig 任务执行器配置
type RunnerConfig struct {
	BaseURL      string
	PollInterval time.Duration
	TotalTimeout time.Duration
}

// NewRunnerConfig 从配置创建执行器配置（缺省 2s 轮询、15 分钟总超时）
func NewRunnerConfig(c *conf.Bootstrap) *RunnerConfig {
	cfg := &RunnerConfig{
		BaseURL:      defaultProviderBase,
		PollInterval: constants.DefaultPollInterval,
		TotalTimeout: constants.DefaultTotalTimeout,
	}
	if c != nil && c.Provider != nil && c.Provider.BaseUrl != "" {
		cfg.BaseURL = c.Provider.BaseUrl
	}
	if c != nil && c.Runner != nil {
		if c.Runner.PollIntervalSeconds > 0 {
			cfg.PollInterval = time.Duration(c.Runner.PollIntervalSeconds) * time.Second
		}
		if c.Runner.TotalTimeoutSeconds > 0 {
			cfg.TotalTimeout = time.Duration(c.Runner.TotalTimeoutSeconds) * time.Second
		}
	}
	return cfg
}

// JobRunner 任务执行器：驱动单个任务从提交、轮询到终态
//
// 协议的每条退出路径都收敛到两种结局之一：持久化 COMPLETED+结果，
// 或受终态保护的退款+FAILED/CANCELED——不存在扣了费却既无结果也无退款的路径。
// 每次状态迁移各自提交，进程中途崩溃时任务停留在最后一次观测到的状态，
// 由恢复扫描接手
type JobRunner struct {
	repo     GenerationRepo
	gen      *GenerationUseCase
	provider ProviderClient
	locker   RunLocker
	cfg      *RunnerConfig
	log      *log.Helper
	metrics  *metrics.GenerationMetrics
}

// NewJobRunner 创建任务执行器
func NewJobRunner(
	repo GenerationRepo,
	gen *GenerationUseCase,
	provider ProviderClient,
	locker RunLocker,
	cfg *RunnerConfig,
	logger log.Logger,
) *JobRunner {
	return &JobRunner{
		repo:     repo,
		gen:      gen,
		provider: provider,
		locker:   locker,
		cfg:      cfg,
		log:      log.NewHelper(logger),
		metrics:  metrics.GetMetrics(),
	}
}

// Run 执行一个任务的完整协议
// 任务不存在或不处于 QUEUED 时静默退出（幂等空操作，防重复调度）
func (r *JobRunner) Run(ctx context.Context, jobID string) {
	release, err := r.locker.Acquire(ctx, jobID)
	if err != nil {
		r.log.WithContext(ctx).Warnf("job runner lock busy: job_id=%s, error=%v", jobID, err)
		return
	}
	defer release()

	job, err := r.repo.GetJob(ctx, jobID)
	if err != nil {
		r.log.WithContext(ctx).Errorf("job runner load failed: job_id=%s, error=%v", jobID, err)
		return
	}
	if job == nil || job.Status != StatusQueued {
		return
	}

	startTime := time.Now()
	if r.metrics != nil {
		r.metrics.JobsInFlight.Inc()
		defer r.metrics.JobsInFlight.Dec()
	}

	// 提交阶段：任何异常走退款路径
	reply, err := r.provider.Submit(ctx, job.ModelID, job.InputJSON)
	if err != nil {
		r.failUnlessShutdown(ctx, job, err)
		return
	}

	requestID := reply.GetRequestID()
	if requestID == "" {
		r.refund(ctx, job, "provider response missing request id", StatusFailed)
		return
	}

	statusURL := reply.GetStatusURL()
	if statusURL == "" {
		statusURL = BuildStatusURL(r.cfg.BaseURL, job.ModelID, requestID)
	}
	responseURL := reply.GetResponseURL()
	if responseURL == "" {
		responseURL = BuildResultURL(r.cfg.BaseURL, job.ModelID, requestID)
	}
	cancelURL := reply.GetCancelURL()
	if cancelURL == "" {
		cancelURL = BuildCancelURL(r.cfg.BaseURL, job.ModelID, requestID)
	}

	if err := r.repo.MarkSubmitted(ctx, job.GenerationJobID, requestID, statusURL, responseURL, cancelURL); err != nil {
		if genErrors.IsJobAlreadyTerminal(err) {
			// 提交期间被并发取消并退款，终态不可回写
			r.log.WithContext(ctx).Infof("job canceled during submit: job_id=%s", job.GenerationJobID)
			return
		}
		r.failUnlessShutdown(ctx, job, err)
		return
	}

	// 轮询阶段：固定间隔轮询直到墙上时钟截止
	deadline := startTime.Add(r.cfg.TotalTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			// 进程停机：保留最后一次提交的状态，留给恢复扫描处理
			return
		case <-time.After(r.cfg.PollInterval):
		}

		statusReply, err := r.provider.GetStatus(ctx, statusURL)
		if err != nil {
			r.failUnlessShutdown(ctx, job, err)
			return
		}

		status := StatusFromProvider(statusReply.GetStatus())
		switch status {
		case StatusInQueue, StatusInProgress, StatusSubmitted:
			if err := r.repo.UpdateStatus(ctx, job.GenerationJobID, status); err != nil {
				if genErrors.IsJobAlreadyTerminal(err) {
					// 轮询间隙被并发取消并退款，终态不可回写
					r.log.WithContext(ctx).Infof("job canceled during poll: job_id=%s", job.GenerationJobID)
					return
				}
				r.failUnlessShutdown(ctx, job, err)
				return
			}

		case StatusCompleted:
			result, err := r.provider.GetResult(ctx, responseURL)
			if err != nil {
				r.failUnlessShutdown(ctx, job, err)
				return
			}
			if err := r.repo.MarkCompleted(ctx, job.GenerationJobID, result); err != nil {
				if genErrors.IsJobAlreadyTerminal(err) {
					r.log.WithContext(ctx).Infof("job canceled before completion: job_id=%s", job.GenerationJobID)
					return
				}
				r.failUnlessShutdown(ctx, job, err)
				return
			}
			if r.metrics != nil {
				r.metrics.JobOutcomeTotal.WithLabelValues(job.Kind, StatusCompleted).Inc()
				r.metrics.JobRunDuration.WithLabelValues(job.Kind).Observe(time.Since(startTime).Seconds())
			}
			r.log.WithContext(ctx).Infof("generation completed: job_id=%s", job.GenerationJobID)
			return

		default:
			// 提供商上报的显式失败状态
			msg := statusReply.Error
			if msg == "" {
				msg = constants.ProviderDefaultError
			}
			r.refund(ctx, job, msg, StatusFailed)
			return
		}
	}

	r.refund(ctx, job, constants.TimeoutErrorMessage, StatusFailed)
}

// failUnlessShutdown 异常退款；停机取消导致的错误不退款（任务尚未失败）
func (r *JobRunner) failUnlessShutdown(ctx context.Context, job *GenerationJob, cause error) {
	if ctx.Err() != nil {
		r.log.Warnf("job runner interrupted by shutdown: job_id=%s", job.GenerationJobID)
		return
	}
	r.refund(ctx, job, cause.Error(), StatusFailed)
}

func (r *JobRunner) refund(ctx context.Context, job *GenerationJob, errorMessage, status string) {
	err := r.gen.RefundJob(ctx, job, errorMessage, status)
	if err == nil {
		r.log.WithContext(ctx).Errorf("generation failed: job_id=%s, error=%s", job.GenerationJobID, errorMessage)
		return
	}
	if genErrors.IsJobAlreadyTerminal(err) {
		// 取消路径先一步完成了终态迁移，本次退款按空操作处理
		return
	}
	r.log.WithContext(ctx).Errorf("refund failed: job_id=%s, error=%v", job.GenerationJobID, err)
}

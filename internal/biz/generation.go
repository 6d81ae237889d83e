package biz

import (
	"context"
	"encoding/json"
	"time"

	"generation-service/internal/constants"
	genErrors "generation-service/internal/errors"
	"generation-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// 生成任务类型常量
const (
	KindTextToImage  = "TEXT_TO_IMAGE"
	KindImageToImage = "IMAGE_TO_IMAGE"
	KindTextToVideo  = "TEXT_TO_VIDEO"
	KindImageToVideo = "IMAGE_TO_VIDEO"
)

// 生成任务状态常量
// 状态机：QUEUED → SUBMITTED → {IN_QUEUE, IN_PROGRESS}* → COMPLETED | FAILED | CANCELED
const (
	StatusQueued     = "QUEUED"
	StatusSubmitted  = "SUBMITTED"
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusCanceled   = "CANCELED"
)

// IsTerminalStatus 终态判断（终态不可再迁移）
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// StatusFromProvider 将提供商上报的状态映射到内部状态
// 未识别的值按 IN_QUEUE 处理（乐观重试而非立即失败）
// QUEUED 是本地初始态，提供商上报的同名值同样归入 IN_QUEUE，
// 避免已提交的任务退回可调度状态
func StatusFromProvider(value string) string {
	switch value {
	case StatusSubmitted, StatusInQueue, StatusInProgress,
		StatusCompleted, StatusFailed, StatusCanceled:
		return value
	}
	return StatusInQueue
}

// GenerationJob 生成任务领域对象
type GenerationJob struct {
	GenerationJobID   string
	AccountID         string
	Kind              string
	ModelID           string
	ProviderRequestID string // 提交成功前为空
	Status            string
	CostTokens        int64 // 创建时扣费金额，之后不可变
	InputJSON         json.RawMessage
	ResultJSON        json.RawMessage
	ErrorMessage      string
	StatusURL         string
	ResponseURL       string
	CancelURL         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// GenerationRepo 生成领域统一数据层接口（用于跨领域事务，定义在 biz 层）
// 扣费、退款、充值均为单个原子单元：账本条目与余额变更要么同时生效要么都不生效
type GenerationRepo interface {
	// CreateJobWithDebit 原子预扣：对账户行加排它锁重读余额，
	// 余额不足返回 InsufficientBalance 且不产生任何变更；
	// 否则同一事务内写入 DEBIT/GENERATION 账本条目、扣减余额、插入 QUEUED 任务行
	CreateJobWithDebit(ctx context.Context, job *GenerationJob) error

	// RefundJob 受终态保护的退款：对任务行加排它锁，已处于终态则返回
	// JobAlreadyTerminal 且不产生任何变更；否则同一事务内写入
	// CREDIT/REFUND 账本条目（external_ref=任务ID）、增加余额、
	// 更新任务为给定终态与错误信息
	RefundJob(ctx context.Context, jobID string, amount int64, status, errorMessage string) error

	// TopupWithIdempotency 幂等充值：查找或创建账户，锁定账户行；
	// eventID 非空且已存在同引用的 TOPUP 条目时直接返回当前账户（credited=false）；
	// 否则入账。eventID 为空时不去重，每次都入账（至少一次语义，调用方自担）
	TopupWithIdempotency(ctx context.Context, externalUserID string, amount int64, eventID string) (account *Account, credited bool, err error)

	// 任务相关
	GetJob(ctx context.Context, jobID string) (*GenerationJob, error) // 不存在返回 (nil, nil)
	ListJobs(ctx context.Context, accountID string, limit, offset int) ([]*GenerationJob, error)

	// 以下状态写回均对任务行加排它锁检查状态，已处于终态则返回
	// JobAlreadyTerminal 且不产生任何变更（终态不可复活）
	UpdateStatus(ctx context.Context, jobID, status string) error
	MarkSubmitted(ctx context.Context, jobID, requestID, statusURL, responseURL, cancelURL string) error
	MarkCompleted(ctx context.Context, jobID string, result json.RawMessage) error

	// 恢复扫描相关
	ListStuckQueued(ctx context.Context, olderThan time.Time) ([]*GenerationJob, error)
	ListExpiredRunning(ctx context.Context, olderThan time.Time) ([]*GenerationJob, error)
}

// GenerationUseCase 生成任务业务逻辑
type GenerationUseCase struct {
	repo     GenerationRepo
	provider ProviderClient
	pricing  *PricingConfig
	runner   *RunnerConfig
	log      *log.Helper
	metrics  *metrics.GenerationMetrics
}

// NewGenerationUseCase 创建生成任务 UseCase
func NewGenerationUseCase(
	repo GenerationRepo,
	provider ProviderClient,
	pricing *PricingConfig,
	runner *RunnerConfig,
	logger log.Logger,
) *GenerationUseCase {
	return &GenerationUseCase{
		repo:     repo,
		provider: provider,
		pricing:  pricing,
		runner:   runner,
		log:      log.NewHelper(logger),
		metrics:  metrics.GetMetrics(),
	}
}

// CalculateCost 计算任务成本（纯函数，价格表按类型与视频时长档位取值）
// 未知类型属于配置错误，按内部错误处理而非用户错误
func (uc *GenerationUseCase) CalculateCost(kind string, duration int) (int64, error) {
	return uc.pricing.Cost(kind, duration)
}

// CreateJob 创建任务：计算成本后在同一事务内完成扣费与任务落库
// 成功返回的任务已处于 QUEUED 状态且费用已扣除（预留步骤不可拆分）
func (uc *GenerationUseCase) CreateJob(
	ctx context.Context,
	account *Account,
	kind, modelID string,
	input json.RawMessage,
	duration int,
) (*GenerationJob, error) {
	startTime := time.Now()

	cost, err := uc.CalculateCost(kind, duration)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	job := &GenerationJob{
		GenerationJobID: uuid.New().String(),
		AccountID:       account.AccountID,
		Kind:            kind,
		ModelID:         modelID,
		Status:          StatusQueued,
		CostTokens:      cost,
		InputJSON:       input,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = uc.repo.CreateJobWithDebit(ctx, job)

	if uc.metrics != nil {
		uc.metrics.JobCreateDuration.WithLabelValues(kind).Observe(time.Since(startTime).Seconds())
		switch {
		case err == nil:
			uc.metrics.JobCreateTotal.WithLabelValues(kind, "created").Inc()
			uc.metrics.DebitTotal.WithLabelValues(kind).Inc()
			uc.metrics.DebitAmount.WithLabelValues(kind).Add(float64(cost))
		case genErrors.IsInsufficientBalance(err):
			uc.metrics.JobCreateTotal.WithLabelValues(kind, "insufficient_balance").Inc()
		default:
			uc.metrics.JobCreateTotal.WithLabelValues(kind, "error").Inc()
		}
	}
	if err != nil {
		return nil, err
	}

	uc.log.WithContext(ctx).Infof("generation job created: job_id=%s, kind=%s, cost=%d",
		job.GenerationJobID, kind, cost)
	return job, nil
}

// RefundJob 退还任务费用并将任务置为给定终态
// 退款条目的 external_ref 记任务ID，便于追溯；终态保护保证同一任务至多退款一次
func (uc *GenerationUseCase) RefundJob(ctx context.Context, job *GenerationJob, errorMessage, status string) error {
	err := uc.repo.RefundJob(ctx, job.GenerationJobID, job.CostTokens, status, errorMessage)
	if err != nil {
		return err
	}
	if uc.metrics != nil {
		uc.metrics.RefundTotal.WithLabelValues(status).Inc()
		uc.metrics.RefundAmount.Add(float64(job.CostTokens))
		uc.metrics.JobOutcomeTotal.WithLabelValues(job.Kind, status).Inc()
	}
	uc.log.WithContext(ctx).Infof("generation job refunded: job_id=%s, status=%s, amount=%d",
		job.GenerationJobID, status, job.CostTokens)
	return nil
}

// GetJob 查询任务；不属于该账户时与不存在同样返回 nil（不泄露其他账户任务的存在性）
func (uc *GenerationUseCase) GetJob(ctx context.Context, jobID string, account *Account) (*GenerationJob, error) {
	job, err := uc.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.AccountID != account.AccountID {
		return nil, nil
	}
	return job, nil
}

// ListJobs 账户任务列表（创建时间倒序，limit/offset 分页）
func (uc *GenerationUseCase) ListJobs(ctx context.Context, account *Account, limit, offset int) ([]*GenerationJob, error) {
	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return uc.repo.ListJobs(ctx, account.AccountID, limit, offset)
}

// CancelJob 取消任务
// 仅非终态可取消；若已提交且仍在排队（IN_QUEUE/SUBMITTED），先尽力调用提供商取消
// （仅传播传输错误），随后走与失败路径相同的受保护退款，终态置 CANCELED
func (uc *GenerationUseCase) CancelJob(ctx context.Context, jobID string, account *Account) (*GenerationJob, error) {
	job, err := uc.GetJob(ctx, jobID, account)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, genErrors.ErrorJobNotFound("job not found: %s", jobID)
	}
	if IsTerminalStatus(job.Status) {
		return nil, genErrors.ErrorJobFinished("cannot cancel finished job: %s", jobID)
	}

	if job.ProviderRequestID != "" && (job.Status == StatusInQueue || job.Status == StatusSubmitted) {
		cancelURL := job.CancelURL
		if cancelURL == "" {
			cancelURL = BuildCancelURL(uc.runner.BaseURL, job.ModelID, job.ProviderRequestID)
		}
		if err := uc.provider.Cancel(ctx, cancelURL); err != nil {
			return nil, err
		}
	}

	if err := uc.RefundJob(ctx, job, constants.CanceledErrorMessage, StatusCanceled); err != nil {
		// 执行器在竞争窗口内先一步到达终态，对调用方表现为任务已结束
		if genErrors.IsJobAlreadyTerminal(err) {
			return nil, genErrors.ErrorJobFinished("cannot cancel finished job: %s", jobID)
		}
		return nil, err
	}

	job.Status = StatusCanceled
	job.ErrorMessage = constants.CanceledErrorMessage
	return job, nil
}

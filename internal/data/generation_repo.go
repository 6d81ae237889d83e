package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"generation-service/internal/biz"
	"generation-service/internal/constants"
	"generation-service/internal/data/model"
	genErrors "generation-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// generationRepo 生成领域组合 repo，实现 biz.GenerationRepo 接口
// 扣费、退款、充值都在单个数据库事务内完成账本与余额的联动变更
type generationRepo struct {
	data *Data
	log  *log.Helper
}

// NewGenerationRepo 创建组合 repo
func NewGenerationRepo(data *Data, logger log.Logger) biz.GenerationRepo {
	return &generationRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreateJobWithDebit 原子预扣并创建任务
// 账户行排它锁下重读余额，不足则整体回滚
func (r *generationRepo) CreateJobWithDebit(ctx context.Context, job *biz.GenerationJob) error {
	var newBalance int64
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account model.Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_id = ?", job.AccountID).
			First(&account).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("account not found: %s", job.AccountID)
			}
			return err
		}

		if account.BalanceTokens < job.CostTokens {
			return genErrors.ErrorInsufficientBalance(
				"insufficient balance: have %d, need %d", account.BalanceTokens, job.CostTokens)
		}

		if err := tx.Model(&account).
			Update("balance_tokens", gorm.Expr("balance_tokens - ?", job.CostTokens)).Error; err != nil {
			return err
		}

		jobRef := job.GenerationJobID
		entry := model.LedgerEntry{
			LedgerEntryID: uuid.New().String(),
			AccountID:     job.AccountID,
			Direction:     biz.DirectionDebit,
			Reason:        biz.ReasonGeneration,
			Amount:        job.CostTokens,
			ExternalRef:   &jobRef,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		m := model.GenerationJob{
			GenerationJobID: job.GenerationJobID,
			AccountID:       job.AccountID,
			Kind:            job.Kind,
			ModelID:         job.ModelID,
			Status:          biz.StatusQueued,
			CostTokens:      job.CostTokens,
			InputJSON:       datatypes.JSON(job.InputJSON),
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}

		newBalance = account.BalanceTokens - job.CostTokens
		return nil
	})
	if err != nil {
		return err
	}

	r.updateBalanceCache(job.AccountID, newBalance)
	return nil
}

// RefundJob 受终态保护的退款
// 任务行排它锁下检查状态，已终态则拒绝，保证一个任务至多退款一次
func (r *generationRepo) RefundJob(ctx context.Context, jobID string, amount int64, status, errorMessage string) error {
	var accountID string
	var newBalance int64
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.GenerationJob
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("generation_job_id = ?", jobID).
			First(&job).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return genErrors.ErrorJobNotFound("job not found: %s", jobID)
			}
			return err
		}

		if biz.IsTerminalStatus(job.Status) {
			return genErrors.ErrorJobAlreadyTerminal("job already terminal: %s, status=%s", jobID, job.Status)
		}

		if err := tx.Model(&job).Updates(map[string]interface{}{
			"status":        status,
			"error_message": errorMessage,
		}).Error; err != nil {
			return err
		}

		var account model.Account
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_id = ?", job.AccountID).
			First(&account).Error
		if err != nil {
			return err
		}

		if err := tx.Model(&account).
			Update("balance_tokens", gorm.Expr("balance_tokens + ?", amount)).Error; err != nil {
			return err
		}

		jobRef := jobID
		entry := model.LedgerEntry{
			LedgerEntryID: uuid.New().String(),
			AccountID:     job.AccountID,
			Direction:     biz.DirectionCredit,
			Reason:        biz.ReasonRefund,
			Amount:        amount,
			ExternalRef:   &jobRef,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		accountID = job.AccountID
		newBalance = account.BalanceTokens + amount
		return nil
	})
	if err != nil {
		return err
	}

	r.updateBalanceCache(accountID, newBalance)
	return nil
}

// TopupWithIdempotency 幂等充值
// 账户不存在则先建账（回调可能先于注册到达）；
// 事件号非空且流水已存在时按重放处理，不再入账
func (r *generationRepo) TopupWithIdempotency(ctx context.Context, externalUserID string, amount int64, eventID string) (*biz.Account, bool, error) {
	var result model.Account
	var credited bool
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account model.Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("external_user_id = ?", externalUserID).
			First(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			account = model.Account{
				AccountID:      uuid.New().String(),
				ExternalUserID: externalUserID,
				BalanceTokens:  0,
			}
			if err := tx.Create(&account).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if eventID != "" {
			var existing model.LedgerEntry
			err := tx.Where("reason = ? AND external_ref = ?", biz.ReasonTopup, eventID).
				First(&existing).Error
			if err == nil {
				// 重放：返回当前账户，不产生变更
				result = account
				credited = false
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		if err := tx.Model(&account).
			Update("balance_tokens", gorm.Expr("balance_tokens + ?", amount)).Error; err != nil {
			return err
		}

		entry := model.LedgerEntry{
			LedgerEntryID: uuid.New().String(),
			AccountID:     account.AccountID,
			Direction:     biz.DirectionCredit,
			Reason:        biz.ReasonTopup,
			Amount:        amount,
		}
		if eventID != "" {
			entry.ExternalRef = &eventID
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		account.BalanceTokens += amount
		result = account
		credited = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if credited {
		r.updateBalanceCache(result.AccountID, result.BalanceTokens)
	}
	return toBizAccount(&result), credited, nil
}

// GetJob 查询任务，不存在返回 nil
func (r *generationRepo) GetJob(ctx context.Context, jobID string) (*biz.GenerationJob, error) {
	var m model.GenerationJob
	if err := r.data.db.WithContext(ctx).Where("generation_job_id = ?", jobID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Errorf("GetJob failed: job_id=%s, error=%v", jobID, err)
		return nil, fmt.Errorf("failed to query job: %w", err)
	}
	return toBizJob(&m), nil
}

// ListJobs 按账户分页查询任务，按时间倒序
func (r *generationRepo) ListJobs(ctx context.Context, accountID string, limit, offset int) ([]*biz.GenerationJob, error) {
	var rows []model.GenerationJob
	if err := r.data.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error; err != nil {
		r.log.Errorf("ListJobs failed: account_id=%s, error=%v", accountID, err)
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	jobs := make([]*biz.GenerationJob, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, toBizJob(&rows[i]))
	}
	return jobs, nil
}

// UpdateStatus 非终态的状态迁移
// 任务行排它锁下检查状态，已终态（如并发取消已退款）则拒绝，
// 避免轮询写回把终态任务复活
func (r *generationRepo) UpdateStatus(ctx context.Context, jobID, status string) error {
	return r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.GenerationJob
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("generation_job_id = ?", jobID).
			First(&job).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return genErrors.ErrorJobNotFound("job not found: %s", jobID)
			}
			return err
		}
		if biz.IsTerminalStatus(job.Status) {
			return genErrors.ErrorJobAlreadyTerminal("job already terminal: %s, status=%s", jobID, job.Status)
		}
		return tx.Model(&job).Update("status", status).Error
	})
}

// MarkSubmitted 记录提交回执（请求号与轮询地址）并迁移到 SUBMITTED
// 提交期间任务可能已被取消并退款，终态下拒绝写回
func (r *generationRepo) MarkSubmitted(ctx context.Context, jobID, requestID, statusURL, responseURL, cancelURL string) error {
	return r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.GenerationJob
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("generation_job_id = ?", jobID).
			First(&job).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return genErrors.ErrorJobNotFound("job not found: %s", jobID)
			}
			return err
		}
		if biz.IsTerminalStatus(job.Status) {
			return genErrors.ErrorJobAlreadyTerminal("job already terminal: %s, status=%s", jobID, job.Status)
		}
		return tx.Model(&job).Updates(map[string]interface{}{
			"status":          biz.StatusSubmitted,
			"provider_req_id": requestID,
			"status_url":      statusURL,
			"response_url":    responseURL,
			"cancel_url":      cancelURL,
		}).Error
	})
}

// MarkCompleted 任务行排它锁下迁移到 COMPLETED 并落盘结果
// 已终态（如并发取消）则拒绝
func (r *generationRepo) MarkCompleted(ctx context.Context, jobID string, resultJSON json.RawMessage) error {
	return r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.GenerationJob
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("generation_job_id = ?", jobID).
			First(&job).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return genErrors.ErrorJobNotFound("job not found: %s", jobID)
			}
			return err
		}
		if biz.IsTerminalStatus(job.Status) {
			return genErrors.ErrorJobAlreadyTerminal("job already terminal: %s, status=%s", jobID, job.Status)
		}
		return tx.Model(&job).Updates(map[string]interface{}{
			"status":      biz.StatusCompleted,
			"result_json": datatypes.JSON(resultJSON),
		}).Error
	})
}

// ListStuckQueued 查询宽限期之前创建、仍停留在 QUEUED 的任务
func (r *generationRepo) ListStuckQueued(ctx context.Context, olderThan time.Time) ([]*biz.GenerationJob, error) {
	var rows []model.GenerationJob
	if err := r.data.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", biz.StatusQueued, olderThan).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query stuck queued jobs: %w", err)
	}

	jobs := make([]*biz.GenerationJob, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, toBizJob(&rows[i]))
	}
	return jobs, nil
}

// ListExpiredRunning 查询创建时间早于给定时刻、仍未终态的在途任务
func (r *generationRepo) ListExpiredRunning(ctx context.Context, olderThan time.Time) ([]*biz.GenerationJob, error) {
	var rows []model.GenerationJob
	if err := r.data.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]string{biz.StatusSubmitted, biz.StatusInQueue, biz.StatusInProgress}, olderThan).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query expired running jobs: %w", err)
	}

	jobs := make([]*biz.GenerationJob, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, toBizJob(&rows[i]))
	}
	return jobs, nil
}

// updateBalanceCache 余额变更后同步缓存（设置超时避免阻塞）
func (r *generationRepo) updateBalanceCache(accountID string, balance int64) {
	if accountID == "" {
		return
	}
	balanceKey := fmt.Sprintf("%s%s", constants.RedisKeyBalance, accountID)
	cacheCtx, cacheCancel := context.WithTimeout(context.Background(), constants.CacheWriteTimeout)
	defer cacheCancel()
	if err := r.data.rdb.Set(cacheCtx, balanceKey, strconv.FormatInt(balance, 10), constants.BalanceCacheTTL).Err(); err != nil {
		r.log.Warnf("failed to update balance cache: account_id=%s, error=%v", accountID, err)
	}
}

func toBizJob(m *model.GenerationJob) *biz.GenerationJob {
	return &biz.GenerationJob{
		GenerationJobID:   m.GenerationJobID,
		AccountID:         m.AccountID,
		Kind:              m.Kind,
		ModelID:           m.ModelID,
		ProviderRequestID: m.ProviderReqID,
		Status:            m.Status,
		CostTokens:        m.CostTokens,
		InputJSON:         json.RawMessage(m.InputJSON),
		ResultJSON:        json.RawMessage(m.ResultJSON),
		ErrorMessage:      m.ErrorMessage,
		StatusURL:         m.StatusURL,
		ResponseURL:       m.ResponseURL,
		CancelURL:         m.CancelURL,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

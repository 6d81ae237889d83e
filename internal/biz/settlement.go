package biz

import (
	"context"

	"generation-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// SettlementUseCase 充值结算业务逻辑（支付回调与 MQ 充值事件共用）
type SettlementUseCase struct {
	repo    GenerationRepo
	log     *log.Helper
	metrics *metrics.GenerationMetrics
}

// NewSettlementUseCase 创建结算 UseCase
func NewSettlementUseCase(repo GenerationRepo, logger log.Logger) *SettlementUseCase {
	return &SettlementUseCase{
		repo:    repo,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// HandleTopup 处理一次充值结算
// 回调可能早于注册到达，账户不存在时懒创建（无密钥材料）。
// eventID 非空时按 (TOPUP, external_ref) 去重，重放不再入账；
// eventID 为空时不去重，每次都入账（调用方接受至少一次语义）
func (uc *SettlementUseCase) HandleTopup(ctx context.Context, externalUserID string, amount int64, eventID string) (*Account, error) {
	account, credited, err := uc.repo.TopupWithIdempotency(ctx, externalUserID, amount, eventID)
	if err != nil {
		if uc.metrics != nil {
			uc.metrics.TopupTotal.WithLabelValues("failed").Inc()
		}
		return nil, err
	}

	if !credited {
		if uc.metrics != nil {
			uc.metrics.TopupTotal.WithLabelValues("duplicate").Inc()
		}
		uc.log.WithContext(ctx).Infof("topup already processed: external_user_id=%s, event_id=%s",
			externalUserID, eventID)
		return account, nil
	}

	if uc.metrics != nil {
		uc.metrics.TopupTotal.WithLabelValues("credited").Inc()
		uc.metrics.TopupAmount.Add(float64(amount))
	}
	uc.log.WithContext(ctx).Infof("topup credited: external_user_id=%s, amount=%d, event_id=%s",
		externalUserID, amount, eventID)
	return account, nil
}

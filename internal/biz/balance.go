package biz

import (
	"context"

	"generation-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// BalanceUseCase 余额业务逻辑
type BalanceUseCase struct {
	accounts AccountRepo
	ledger   LedgerRepo
	log      *log.Helper
	metrics  *metrics.GenerationMetrics
}

// NewBalanceUseCase 创建余额 UseCase
func NewBalanceUseCase(accounts AccountRepo, ledger LedgerRepo, logger log.Logger) *BalanceUseCase {
	return &BalanceUseCase{
		accounts: accounts,
		ledger:   ledger,
		log:      log.NewHelper(logger),
		metrics:  metrics.GetMetrics(),
	}
}

// GetBalance 查询账户余额
func (uc *BalanceUseCase) GetBalance(ctx context.Context, account *Account) (int64, error) {
	if uc.metrics != nil {
		uc.metrics.BalanceQueryTotal.Inc()
	}
	return uc.accounts.GetBalance(ctx, account.AccountID)
}

// ListEntries 账本分页查询（创建时间倒序）
func (uc *BalanceUseCase) ListEntries(ctx context.Context, account *Account, limit, offset int) ([]*LedgerEntry, int64, error) {
	return uc.ledger.ListEntries(ctx, account.AccountID, limit, offset)
}

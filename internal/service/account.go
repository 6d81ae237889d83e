package service

import (
	"context"
	"time"

	"generation-service/internal/biz"
	"generation-service/internal/constants"
	genErrors "generation-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// RegisterRequest 注册/轮换密钥请求
type RegisterRequest struct {
	ExternalUserID string `json:"external_user_id"`
	Rotate         bool   `json:"rotate"`
}

// RegisterReply 注册响应，api_key 明文仅在此返回一次
type RegisterReply struct {
	ExternalUserID string `json:"external_user_id"`
	APIKey         string `json:"api_key"`
	BalanceTokens  int64  `json:"balance_tokens"`
	CreatedAt      string `json:"created_at"`
}

// BalanceReply 余额查询响应
type BalanceReply struct {
	ExternalUserID string `json:"external_user_id"`
	BalanceTokens  int64  `json:"balance_tokens"`
}

// LedgerEntryReply 流水条目
type LedgerEntryReply struct {
	LedgerEntryID string `json:"ledger_entry_id"`
	Direction     string `json:"direction"`
	Reason        string `json:"reason"`
	Amount        int64  `json:"amount"`
	ExternalRef   string `json:"external_ref,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// ListLedgerReply 流水分页响应
type ListLedgerReply struct {
	Total   int64               `json:"total"`
	Entries []*LedgerEntryReply `json:"entries"`
}

// AccountService 账户与余额服务
type AccountService struct {
	accounts *biz.AccountUseCase
	balance  *biz.BalanceUseCase
	log      *log.Helper
}

// NewAccountService 创建 AccountService
func NewAccountService(accounts *biz.AccountUseCase, balance *biz.BalanceUseCase, logger log.Logger) *AccountService {
	return &AccountService{
		accounts: accounts,
		balance:  balance,
		log:      log.NewHelper(logger),
	}
}

// Register 注册账户或轮换密钥
func (s *AccountService) Register(ctx context.Context, req *RegisterRequest) (*RegisterReply, error) {
	if req.ExternalUserID == "" {
		return nil, genErrors.ErrorInvalidArgument("external_user_id is required")
	}

	account, apiKey, err := s.accounts.RegisterOrRotate(ctx, req.ExternalUserID, req.Rotate)
	if err != nil {
		s.log.Errorf("Register failed: external_user_id=%s, error=%v", req.ExternalUserID, err)
		return nil, err
	}

	return &RegisterReply{
		ExternalUserID: account.ExternalUserID,
		APIKey:         apiKey,
		BalanceTokens:  account.BalanceTokens,
		CreatedAt:      account.CreatedAt.Format(time.RFC3339),
	}, nil
}

// GetBalance 查询当前账户余额
func (s *AccountService) GetBalance(ctx context.Context) (*BalanceReply, error) {
	account := AccountFromContext(ctx)
	if account == nil {
		return nil, genErrors.ErrorUnauthorized("unauthorized")
	}

	balance, err := s.balance.GetBalance(ctx, account)
	if err != nil {
		s.log.Errorf("GetBalance failed: %v", err)
		return nil, err
	}

	return &BalanceReply{
		ExternalUserID: account.ExternalUserID,
		BalanceTokens:  balance,
	}, nil
}

// ListLedger 查询当前账户的代币流水
func (s *AccountService) ListLedger(ctx context.Context, limit, offset int) (*ListLedgerReply, error) {
	account := AccountFromContext(ctx)
	if account == nil {
		return nil, genErrors.ErrorUnauthorized("unauthorized")
	}

	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	entries, total, err := s.balance.ListEntries(ctx, account, limit, offset)
	if err != nil {
		s.log.Errorf("ListLedger failed: %v", err)
		return nil, err
	}

	reply := &ListLedgerReply{
		Total:   total,
		Entries: make([]*LedgerEntryReply, 0, len(entries)),
	}
	for _, e := range entries {
		reply.Entries = append(reply.Entries, &LedgerEntryReply{
			LedgerEntryID: e.LedgerEntryID,
			Direction:     e.Direction,
			Reason:        e.Reason,
			Amount:        e.Amount,
			ExternalRef:   e.ExternalRef,
			CreatedAt:     e.CreatedAt.Format(time.RFC3339),
		})
	}
	return reply, nil
}

package service

import (
	"context"
	"crypto/subtle"

	"generation-service/internal/biz"
	"generation-service/internal/conf"
	genErrors "generation-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// TopupRequest 充值回调请求
// EventID 来自 X-Event-Id 头，Secret 来自 X-Webhook-Secret 头，由路由层填充
type TopupRequest struct {
	ExternalUserID string `json:"external_user_id"`
	Amount         int64  `json:"amount"`
	EventID        string `json:"-"`
	Secret         string `json:"-"`
}

// TopupReply 充值回调响应
type TopupReply struct {
	ExternalUserID string `json:"external_user_id"`
	BalanceTokens  int64  `json:"balance_tokens"`
}

// WebhookService 支付回调服务
type WebhookService struct {
	uc     *biz.SettlementUseCase
	secret string
	log    *log.Helper
}

// NewWebhookService 创建 WebhookService
func NewWebhookService(uc *biz.SettlementUseCase, c *conf.Bootstrap, logger log.Logger) *WebhookService {
	secret := ""
	if c != nil && c.Webhook != nil {
		secret = c.Webhook.Secret
	}
	return &WebhookService{
		uc:     uc,
		secret: secret,
		log:    log.NewHelper(logger),
	}
}

// HandleTopup 处理充值回调，按事件号幂等入账
func (s *WebhookService) HandleTopup(ctx context.Context, req *TopupRequest) (*TopupReply, error) {
	if s.secret == "" || subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.secret)) != 1 {
		return nil, genErrors.ErrorWebhookSecret("invalid webhook secret")
	}
	if req.ExternalUserID == "" {
		return nil, genErrors.ErrorInvalidArgument("external_user_id is required")
	}
	if req.Amount <= 0 {
		return nil, genErrors.ErrorInvalidArgument("amount must be positive")
	}

	account, err := s.uc.HandleTopup(ctx, req.ExternalUserID, req.Amount, req.EventID)
	if err != nil {
		s.log.Errorf("HandleTopup failed: external_user_id=%s, error=%v", req.ExternalUserID, err)
		return nil, err
	}

	return &TopupReply{
		ExternalUserID: account.ExternalUserID,
		BalanceTokens:  account.BalanceTokens,
	}, nil
}

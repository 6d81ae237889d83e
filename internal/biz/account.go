package biz

import (
	"context"
	"time"

	genErrors "generation-service/internal/errors"
	"generation-service/internal/security"

	"github.com/go-kratos/kratos/v2/log"
)

// Account 账户领域对象
// 余额只能通过数据层的原子操作（扣费/退款/充值事务）变更
type Account struct {
	AccountID         string
	ExternalUserID    string
	APIKeyHash        string // 未注册（仅充值创建）时为空
	APIKeyFingerprint string
	BalanceTokens     int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AccountRepo 账户数据层接口（定义在 biz 层）
type AccountRepo interface {
	// GetByExternalID 按外部用户ID查询，不存在时返回 (nil, nil)
	GetByExternalID(ctx context.Context, externalUserID string) (*Account, error)
	// GetByFingerprint 按密钥指纹查询，不存在时返回 (nil, nil)
	GetByFingerprint(ctx context.Context, fingerprint string) (*Account, error)
	// Create 创建账户（密钥材料可为空，首次充值场景）
	Create(ctx context.Context, externalUserID, apiKeyHash, apiKeyFingerprint string) (*Account, error)
	// UpdateAPIKey 轮换密钥材料
	UpdateAPIKey(ctx context.Context, accountID, apiKeyHash, apiKeyFingerprint string) error
	// GetBalance 查询余额（允许走缓存）
	GetBalance(ctx context.Context, accountID string) (int64, error)
}

// AccountUseCase 账户业务逻辑（注册/轮换/认证）
type AccountUseCase struct {
	repo AccountRepo
	log  *log.Helper
}

// NewAccountUseCase 创建账户 UseCase
func NewAccountUseCase(repo AccountRepo, logger log.Logger) *AccountUseCase {
	return &AccountUseCase{
		repo: repo,
		log:  log.NewHelper(logger),
	}
}

// RegisterOrRotate 注册账户或轮换 API 密钥
// 明文密钥只在此处返回一次，之后只保留哈希与指纹
func (uc *AccountUseCase) RegisterOrRotate(ctx context.Context, externalUserID string, rotate bool) (*Account, string, error) {
	account, err := uc.repo.GetByExternalID(ctx, externalUserID)
	if err != nil {
		return nil, "", err
	}

	plaintext, err := security.NewAPIKey()
	if err != nil {
		return nil, "", err
	}
	hashed, err := security.HashAPIKey(plaintext)
	if err != nil {
		return nil, "", err
	}
	fingerprint := security.Fingerprint(plaintext)

	if account == nil {
		account, err = uc.repo.Create(ctx, externalUserID, hashed, fingerprint)
		if err != nil {
			return nil, "", err
		}
		uc.log.WithContext(ctx).Infof("account registered: external_user_id=%s", externalUserID)
		return account, plaintext, nil
	}

	if !rotate {
		return nil, "", genErrors.ErrorUserAlreadyExists("account already registered: %s", externalUserID)
	}

	if err := uc.repo.UpdateAPIKey(ctx, account.AccountID, hashed, fingerprint); err != nil {
		return nil, "", err
	}

	refreshed, err := uc.repo.GetByExternalID(ctx, externalUserID)
	if err != nil {
		return nil, "", err
	}
	if refreshed != nil {
		account = refreshed
	}
	uc.log.WithContext(ctx).Infof("api key rotated: external_user_id=%s", externalUserID)
	return account, plaintext, nil
}

// Authenticate 按 API 密钥认证；失败统一返回未授权错误，不泄露账户是否存在
func (uc *AccountUseCase) Authenticate(ctx context.Context, apiKey string) (*Account, error) {
	if apiKey == "" {
		return nil, genErrors.ErrorUnauthorized("missing api key")
	}

	fingerprint := security.Fingerprint(apiKey)
	account, err := uc.repo.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if account == nil || account.APIKeyHash == "" {
		return nil, genErrors.ErrorUnauthorized("invalid api key")
	}
	if !security.VerifyAPIKey(apiKey, account.APIKeyHash) {
		return nil, genErrors.ErrorUnauthorized("invalid api key")
	}
	return account, nil
}

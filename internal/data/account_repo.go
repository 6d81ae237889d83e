package data

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"generation-service/internal/biz"
	"generation-service/internal/constants"
	"generation-service/internal/data/model"
	genErrors "generation-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// accountRepo 账户数据访问
type accountRepo struct {
	data *Data
	log  *log.Helper
}

// NewAccountRepo 创建账户 repo（返回 biz.AccountRepo 接口）
func NewAccountRepo(data *Data, logger log.Logger) biz.AccountRepo {
	return &accountRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetByExternalID 按外部用户标识查询账户，不存在返回 nil
func (r *accountRepo) GetByExternalID(ctx context.Context, externalUserID string) (*biz.Account, error) {
	if externalUserID == "" {
		return nil, fmt.Errorf("externalUserID is required")
	}

	var m model.Account
	if err := r.data.db.WithContext(ctx).Where("external_user_id = ?", externalUserID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Errorf("GetByExternalID failed: external_user_id=%s, error=%v", externalUserID, err)
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return toBizAccount(&m), nil
}

// GetByFingerprint 按密钥指纹查询账户，不存在返回 nil
// 指纹只做索引收敛，真实校验由业务层的哈希比对完成
func (r *accountRepo) GetByFingerprint(ctx context.Context, fingerprint string) (*biz.Account, error) {
	if fingerprint == "" {
		return nil, nil
	}

	var m model.Account
	if err := r.data.db.WithContext(ctx).Where("api_key_fingerprint = ?", fingerprint).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Errorf("GetByFingerprint failed: error=%v", err)
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return toBizAccount(&m), nil
}

// Create 创建账户
func (r *accountRepo) Create(ctx context.Context, externalUserID, apiKeyHash, apiKeyFingerprint string) (*biz.Account, error) {
	m := model.Account{
		AccountID:         uuid.New().String(),
		ExternalUserID:    externalUserID,
		APIKeyHash:        apiKeyHash,
		APIKeyFingerprint: apiKeyFingerprint,
		BalanceTokens:     0,
	}
	if err := r.data.db.WithContext(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, genErrors.ErrorUserAlreadyExists("account already exists: %s", externalUserID)
		}
		r.log.Errorf("Create account failed: external_user_id=%s, error=%v", externalUserID, err)
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return toBizAccount(&m), nil
}

// UpdateAPIKey 轮换账户密钥
func (r *accountRepo) UpdateAPIKey(ctx context.Context, accountID, apiKeyHash, apiKeyFingerprint string) error {
	result := r.data.db.WithContext(ctx).Model(&model.Account{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"api_key_hash":        apiKeyHash,
			"api_key_fingerprint": apiKeyFingerprint,
		})
	if result.Error != nil {
		r.log.Errorf("UpdateAPIKey failed: account_id=%s, error=%v", accountID, result.Error)
		return fmt.Errorf("failed to update api key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("account not found: %s", accountID)
	}
	return nil
}

// GetBalance 查询账户余额
// 先读 Redis 缓存，未命中回源数据库并异步回写缓存
func (r *accountRepo) GetBalance(ctx context.Context, accountID string) (int64, error) {
	balanceKey := fmt.Sprintf("%s%s", constants.RedisKeyBalance, accountID)
	balanceStr, err := r.data.rdb.Get(ctx, balanceKey).Result()
	if err == nil {
		if balance, parseErr := strconv.ParseInt(balanceStr, 10, 64); parseErr == nil {
			return balance, nil
		}
	}

	var m model.Account
	if err := r.data.db.WithContext(ctx).Where("account_id = ?", accountID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		r.log.Errorf("GetBalance failed: account_id=%s, error=%v", accountID, err)
		return 0, fmt.Errorf("failed to query balance: %w", err)
	}

	// 回写缓存（异步，设置超时避免长时间等待）
	go func() {
		cacheCtx, cacheCancel := context.WithTimeout(context.Background(), constants.CacheWriteTimeout)
		defer cacheCancel()
		r.data.rdb.Set(cacheCtx, balanceKey, strconv.FormatInt(m.BalanceTokens, 10), constants.BalanceCacheTTL)
	}()

	return m.BalanceTokens, nil
}

func toBizAccount(m *model.Account) *biz.Account {
	return &biz.Account{
		AccountID:         m.AccountID,
		ExternalUserID:    m.ExternalUserID,
		APIKeyHash:        m.APIKeyHash,
		APIKeyFingerprint: m.APIKeyFingerprint,
		BalanceTokens:     m.BalanceTokens,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

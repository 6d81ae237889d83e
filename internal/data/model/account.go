package model

import (
	"time"
)

// Account 账户表
// 一个外部用户对应一个账户，余额以代币整数计
// 充值回调可先于注册建账，此时密钥字段为空
type Account struct {
	AccountID         string    `gorm:"primaryKey;type:varchar(36)"`
	ExternalUserID    string    `gorm:"uniqueIndex;type:varchar(64);not null"`
	APIKeyHash        string    `gorm:"type:varchar(128)"`
	APIKeyFingerprint string    `gorm:"index;type:varchar(16)"`
	BalanceTokens     int64     `gorm:"not null;default:0"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Account) TableName() string {
	return "account"
}

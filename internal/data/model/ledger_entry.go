package model

import (
	"time"
)

// LedgerEntry 代币流水表
// (reason, external_ref) 唯一索引承载充值与退款的幂等去重
// external_ref 为 NULL 时不参与去重（无事件号的充值按至少一次语义落账）
type LedgerEntry struct {
	LedgerEntryID string    `gorm:"primaryKey;type:varchar(36)"`
	AccountID     string    `gorm:"type:varchar(36);not null;index:idx_account_date,priority:1"`
	Direction     string    `gorm:"type:enum('CREDIT','DEBIT');not null"`
	Reason        string    `gorm:"type:varchar(16);not null;uniqueIndex:uniq_reason_ref,priority:1"`
	Amount        int64     `gorm:"not null"`
	ExternalRef   *string   `gorm:"type:varchar(64);uniqueIndex:uniq_reason_ref,priority:2"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index:idx_account_date,priority:2"`
}

// TableName 指定表名
func (LedgerEntry) TableName() string {
	return "ledger_entry"
}

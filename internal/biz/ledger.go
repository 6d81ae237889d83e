package biz

import (
	"context"
	"time"
)

// 账本方向常量
const (
	// DirectionCredit 入账
	DirectionCredit = "CREDIT"
	// DirectionDebit 出账
	DirectionDebit = "DEBIT"
)

// 账本原因常量
const (
	// ReasonTopup 充值入账
	ReasonTopup = "TOPUP"
	// ReasonGeneration 生成任务扣费
	ReasonGeneration = "GENERATION"
	// ReasonRefund 失败/取消退款
	ReasonRefund = "REFUND"
)

// LedgerEntry 账本条目领域对象（只追加，写入后不可变）
// 金额恒为正数，方向决定正负；任意时刻账户余额等于
// 其 CREDIT 条目之和减去 DEBIT 条目之和
type LedgerEntry struct {
	LedgerEntryID string
	AccountID     string
	Direction     string
	Reason        string
	Amount        int64
	ExternalRef   string // TOPUP 的幂等锚点；REFUND 写任务ID便于追溯
	CreatedAt     time.Time
}

// LedgerRepo 账本数据层接口（定义在 biz 层）
// 条目写入只发生在数据层的原子事务里（扣费/退款/充值），
// 这里只暴露查询
type LedgerRepo interface {
	// ListEntries 按账户分页查询账本（创建时间倒序）
	ListEntries(ctx context.Context, accountID string, limit, offset int) ([]*LedgerEntry, int64, error)
}

package data

import (
	"context"
	"fmt"

	"generation-service/internal/biz"
	"generation-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
)

// ledgerRepo 流水数据访问
type ledgerRepo struct {
	data *Data
	log  *log.Helper
}

// NewLedgerRepo 创建流水 repo（返回 biz.LedgerRepo 接口）
func NewLedgerRepo(data *Data, logger log.Logger) biz.LedgerRepo {
	return &ledgerRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// ListEntries 按账户分页查询流水，按时间倒序
func (r *ledgerRepo) ListEntries(ctx context.Context, accountID string, limit, offset int) ([]*biz.LedgerEntry, int64, error) {
	if accountID == "" {
		return nil, 0, fmt.Errorf("accountID is required")
	}

	var total int64
	if err := r.data.db.WithContext(ctx).Model(&model.LedgerEntry{}).
		Where("account_id = ?", accountID).Count(&total).Error; err != nil {
		r.log.Errorf("ListEntries count failed: account_id=%s, error=%v", accountID, err)
		return nil, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	var rows []model.LedgerEntry
	if err := r.data.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error; err != nil {
		r.log.Errorf("ListEntries failed: account_id=%s, error=%v", accountID, err)
		return nil, 0, fmt.Errorf("failed to query ledger entries: %w", err)
	}

	entries := make([]*biz.LedgerEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, toBizLedgerEntry(&rows[i]))
	}
	return entries, total, nil
}

func toBizLedgerEntry(m *model.LedgerEntry) *biz.LedgerEntry {
	externalRef := ""
	if m.ExternalRef != nil {
		externalRef = *m.ExternalRef
	}
	return &biz.LedgerEntry{
		LedgerEntryID: m.LedgerEntryID,
		AccountID:     m.AccountID,
		Direction:     m.Direction,
		Reason:        m.Reason,
		Amount:        m.Amount,
		ExternalRef:   externalRef,
		CreatedAt:     m.CreatedAt,
	}
}

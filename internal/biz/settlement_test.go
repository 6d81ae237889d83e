package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleTopupCreditsOncePerEvent(t *testing.T) {
	repo := newFakeGenerationRepo()
	uc := NewSettlementUseCase(repo, newTestLogger())
	account := repo.addAccount("user-1", 0)

	first, err := uc.HandleTopup(context.Background(), "user-1", 100, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), first.BalanceTokens)

	// 同一事件号重放：余额不变
	replay, err := uc.HandleTopup(context.Background(), "user-1", 100, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), replay.BalanceTokens)
	assert.Equal(t, int64(100), repo.balance(account.AccountID))
	assert.Len(t, repo.entriesByReason(ReasonTopup), 1)

	// 不同事件号：再次入账
	second, err := uc.HandleTopup(context.Background(), "user-1", 50, "evt-2")
	require.NoError(t, err)
	assert.Equal(t, int64(150), second.BalanceTokens)
}

func TestHandleTopupWithoutEventIDAlwaysCredits(t *testing.T) {
	repo := newFakeGenerationRepo()
	uc := NewSettlementUseCase(repo, newTestLogger())
	repo.addAccount("user-1", 0)

	for i := 0; i < 3; i++ {
		_, err := uc.HandleTopup(context.Background(), "user-1", 10, "")
		require.NoError(t, err)
	}

	account, err := uc.HandleTopup(context.Background(), "user-1", 10, "")
	require.NoError(t, err)
	assert.Equal(t, int64(40), account.BalanceTokens)
	assert.Len(t, repo.entriesByReason(ReasonTopup), 4)
}

func TestHandleTopupLazilyCreatesAccount(t *testing.T) {
	repo := newFakeGenerationRepo()
	uc := NewSettlementUseCase(repo, newTestLogger())

	account, err := uc.HandleTopup(context.Background(), "new-user", 25, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "new-user", account.ExternalUserID)
	assert.Equal(t, int64(25), account.BalanceTokens)
	// 回调建账没有密钥材料
	assert.Empty(t, account.APIKeyHash)
}

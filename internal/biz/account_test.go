package biz

import (
	"context"
	"testing"

	genErrors "generation-service/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterReturnsPlaintextOnce(t *testing.T) {
	repo := newFakeAccountRepo()
	uc := NewAccountUseCase(repo, newTestLogger())

	account, apiKey, err := uc.RegisterOrRotate(context.Background(), "user-1", false)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.NotEmpty(t, apiKey)
	// 存储的只有哈希与指纹，不含明文
	assert.NotEmpty(t, account.APIKeyHash)
	assert.NotContains(t, account.APIKeyHash, apiKey)
	assert.Len(t, account.APIKeyFingerprint, 16)
}

func TestRegisterExistingWithoutRotateRejected(t *testing.T) {
	repo := newFakeAccountRepo()
	uc := NewAccountUseCase(repo, newTestLogger())

	_, _, err := uc.RegisterOrRotate(context.Background(), "user-1", false)
	require.NoError(t, err)

	_, _, err = uc.RegisterOrRotate(context.Background(), "user-1", false)
	require.Error(t, err)
	assert.True(t, genErrors.IsUserAlreadyExists(err))
}

func TestRotateInvalidatesOldKey(t *testing.T) {
	repo := newFakeAccountRepo()
	uc := NewAccountUseCase(repo, newTestLogger())

	_, oldKey, err := uc.RegisterOrRotate(context.Background(), "user-1", false)
	require.NoError(t, err)

	_, newKey, err := uc.RegisterOrRotate(context.Background(), "user-1", true)
	require.NoError(t, err)
	assert.NotEqual(t, oldKey, newKey)

	_, err = uc.Authenticate(context.Background(), oldKey)
	require.Error(t, err)
	assert.True(t, genErrors.IsUnauthorized(err))

	account, err := uc.Authenticate(context.Background(), newKey)
	require.NoError(t, err)
	assert.Equal(t, "user-1", account.ExternalUserID)
}

func TestAuthenticateRejectsBadKeys(t *testing.T) {
	repo := newFakeAccountRepo()
	uc := NewAccountUseCase(repo, newTestLogger())

	_, apiKey, err := uc.RegisterOrRotate(context.Background(), "user-1", false)
	require.NoError(t, err)

	// 空密钥、未知密钥、篡改过的密钥统一返回未授权
	for _, bad := range []string{"", "not-a-key", apiKey + "x"} {
		_, err := uc.Authenticate(context.Background(), bad)
		require.Error(t, err)
		assert.True(t, genErrors.IsUnauthorized(err))
	}

	account, err := uc.Authenticate(context.Background(), apiKey)
	require.NoError(t, err)
	assert.Equal(t, "user-1", account.ExternalUserID)
}

package service

import (
	"context"

	"generation-service/internal/biz"

	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(
	NewAccountService,
	NewGenerationService,
	NewWebhookService,
)

type accountCtxKey struct{}

// NewContextWithAccount 将已认证账户写入请求上下文（由认证中间件调用）
func NewContextWithAccount(ctx context.Context, account *biz.Account) context.Context {
	return context.WithValue(ctx, accountCtxKey{}, account)
}

// AccountFromContext 取出已认证账户，未经认证的请求返回 nil
func AccountFromContext(ctx context.Context) *biz.Account {
	account, _ := ctx.Value(accountCtxKey{}).(*biz.Account)
	return account
}

package biz

import "github.com/google/wire"

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewPricingConfig,
	NewRunnerConfig,
	NewSweepConfig,
	NewAccountUseCase,
	NewBalanceUseCase,
	NewGenerationUseCase,
	NewSettlementUseCase,
	NewJobRunner,
	NewDispatcher,
	NewSweepUseCase,
)

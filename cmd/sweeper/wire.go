//go:build wireinject
// +build wireinject

package main

import (
	"generation-service/internal/biz"
	"generation-service/internal/conf"
	"generation-service/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp 初始化应用
func wireApp(*conf.Bootstrap, log.Logger) (*SweeperApp, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		wire.Struct(new(SweeperApp), "*"),
	))
}

package sms

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.sms",
	fx.Provide(New),
)

func New(log *zap.Logger) Provider {
	return NewLogProvider(log)
}

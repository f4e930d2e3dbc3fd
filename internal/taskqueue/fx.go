package taskqueue

import (
	"context"
	"time"

	"github.com/skolara/skolara/internal/config"
	"github.com/skolara/skolara/internal/monitoring"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("taskqueue",
	fx.Provide(NewFromConfig),
	fx.Invoke(registerLifecycle),
)

func NewFromConfig(cfg config.Config, log *zap.Logger, metrics *monitoring.Collector) *Queue {
	return New(time.Duration(cfg.TaskTimeoutSeconds)*time.Second, log, metrics)
}

func registerLifecycle(lc fx.Lifecycle, q *Queue) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			q.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return q.Stop(ctx)
		},
	})
}

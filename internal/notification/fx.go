package notification

import (
	"github.com/skolara/skolara/internal/cache"
	"github.com/skolara/skolara/internal/notification/repository"
	"github.com/skolara/skolara/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(
		cache.NewTemplateResolverCache,
		repository.Provide,
		service.New,
		NewTasks,
		NewHandler,
	),
	fx.Invoke(
		RegisterTasks,
		RegisterHandler,
	),
)

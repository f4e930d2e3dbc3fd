package directory

import (
	"github.com/skolara/skolara/internal/directory/repository"
	"github.com/skolara/skolara/internal/directory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("directory.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

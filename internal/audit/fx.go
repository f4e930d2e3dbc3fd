package audit

import (
	"github.com/skolara/skolara/internal/audit/repository"
	"github.com/skolara/skolara/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
	fx.Invoke(RegisterHandler),
)

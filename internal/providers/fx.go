package providers

import (
	"github.com/skolara/skolara/internal/providers/email"
	"github.com/skolara/skolara/internal/providers/push"
	"github.com/skolara/skolara/internal/providers/sms"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	sms.Module,
	push.Module,
)

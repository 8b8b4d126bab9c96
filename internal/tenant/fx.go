package tenant

import (
	"github.com/storelane/storelane/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(service.NewDirectory),
	fx.Provide(service.NewResolver),
)

package subscription

import (
	"github.com/storelane/storelane/internal/subscription/repository"
	"github.com/storelane/storelane/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

package user

import (
	"go.uber.org/fx"

	"github.com/karsada/fleetcore/internal/user/repository"
	"github.com/karsada/fleetcore/internal/user/service"
)

var Module = fx.Module("user.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

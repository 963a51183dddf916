package customer

import (
	"go.uber.org/fx"

	"github.com/karsada/fleetcore/internal/customer/repository"
	"github.com/karsada/fleetcore/internal/customer/service"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

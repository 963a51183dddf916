package invoice

import (
	"github.com/karsada/fleetcore/internal/invoice/repository"
	"github.com/karsada/fleetcore/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

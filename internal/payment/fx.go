package payment

import (
	"go.uber.org/fx"

	"github.com/karsada/fleetcore/internal/payment/repository"
	"github.com/karsada/fleetcore/internal/payment/service"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

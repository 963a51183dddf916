package audit

import (
	"go.uber.org/fx"

	"github.com/karsada/fleetcore/internal/audit/repository"
	"github.com/karsada/fleetcore/internal/audit/service"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

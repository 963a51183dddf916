package auth

import (
	"go.uber.org/fx"

	"github.com/karsada/fleetcore/internal/auth/token"
)

var Module = fx.Module("auth",
	fx.Provide(token.NewManager),
)

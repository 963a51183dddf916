package providers

import (
	"github.com/karsada/fleetcore/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	pdf.Module,
)

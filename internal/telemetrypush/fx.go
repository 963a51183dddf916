package telemetrypush

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/karsada/fleetcore/internal/config"
)

// Module ships process metrics to a central collector when configured.
var Module = fx.Module("telemetry.push",
	fx.Invoke(Register),
)

// Register starts the push loop. It is a no-op unless the telemetry
// block is enabled and points at an endpoint.
func Register(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("telemetry.push")

	pusher := New(cfg, prometheus.DefaultGatherer, log)
	if pusher == nil {
		return
	}

	l := newLoop(pusher, log, exportInterval, exportTimeout)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			l.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return l.Stop(ctx)
		},
	})
}

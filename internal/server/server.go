// Package server wires the HTTP surface: one gin engine, the request
// pipeline (request id, rate limits, bearer auth, casbin, idempotency)
// and a handler file per domain slice.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	auditdomain "github.com/karsada/fleetcore/internal/audit/domain"
	"github.com/karsada/fleetcore/internal/auth/token"
	"github.com/karsada/fleetcore/internal/authorization"
	"github.com/karsada/fleetcore/internal/config"
	customerdomain "github.com/karsada/fleetcore/internal/customer/domain"
	"github.com/karsada/fleetcore/internal/idempotency"
	invoicedomain "github.com/karsada/fleetcore/internal/invoice/domain"
	ledgerdomain "github.com/karsada/fleetcore/internal/ledger/domain"
	maintenancedomain "github.com/karsada/fleetcore/internal/maintenance/domain"
	"github.com/karsada/fleetcore/internal/observability"
	"github.com/karsada/fleetcore/internal/observability/logger"
	"github.com/karsada/fleetcore/internal/observability/metrics"
	"github.com/karsada/fleetcore/internal/observability/tracing"
	paymentdomain "github.com/karsada/fleetcore/internal/payment/domain"
	"github.com/karsada/fleetcore/internal/ratelimit"
	rentaldomain "github.com/karsada/fleetcore/internal/rental/domain"
	userdomain "github.com/karsada/fleetcore/internal/user/domain"
	vehicledomain "github.com/karsada/fleetcore/internal/vehicle/domain"
	"github.com/karsada/fleetcore/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

type ServerParams struct {
	fx.In

	Cfg    config.Config
	Log    *zap.Logger
	Engine *gin.Engine

	VehicleSvc     vehicledomain.Service
	CustomerSvc    customerdomain.Service
	RentalSvc      rentaldomain.Service
	MaintenanceSvc maintenancedomain.Service
	LedgerSvc      ledgerdomain.Service
	InvoiceSvc     invoicedomain.Service
	PaymentSvc     paymentdomain.Service
	UserSvc        userdomain.Service
	AuthzSvc       authorization.Service
	AuditSvc       auditdomain.Service

	Tokens    *token.Manager
	IdemStore *idempotency.Store
	Limiter   *ratelimit.Limiter `optional:"true"`
	Metrics   *telemetry.Metrics `optional:"true"`
}

type Server struct {
	cfg    config.Config
	log    *zap.Logger
	engine *gin.Engine

	vehicleSvc     vehicledomain.Service
	customerSvc    customerdomain.Service
	rentalSvc      rentaldomain.Service
	maintenanceSvc maintenancedomain.Service
	ledgerSvc      ledgerdomain.Service
	invoiceSvc     invoicedomain.Service
	paymentSvc     paymentdomain.Service
	userSvc        userdomain.Service
	authzSvc       authorization.Service
	auditSvc       auditdomain.Service

	tokens    *token.Manager
	idemStore *idempotency.Store
	limiter   *ratelimit.Limiter
	metrics   *telemetry.Metrics
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		engine:         p.Engine,
		vehicleSvc:     p.VehicleSvc,
		customerSvc:    p.CustomerSvc,
		rentalSvc:      p.RentalSvc,
		maintenanceSvc: p.MaintenanceSvc,
		ledgerSvc:      p.LedgerSvc,
		invoiceSvc:     p.InvoiceSvc,
		paymentSvc:     p.PaymentSvc,
		userSvc:        p.UserSvc,
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		tokens:         p.Tokens,
		idemStore:      p.IdemStore,
		limiter:        p.Limiter,
		metrics:        p.Metrics,
	}

	s.registerUserRoutes()
	s.registerVehicleRoutes()
	s.registerCustomerRoutes()
	s.registerRentalRoutes()
	s.registerMaintenanceRoutes()
	s.registerAccountingRoutes()
	s.registerReportRoutes()
	s.registerAuditLogRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func registerGin(obsCfg observability.Config, httpMetrics *metrics.HTTPMetrics, apiMetrics *telemetry.Metrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	engine.Use(tracing.GinMiddleware())
	engine.Use(metrics.GinMiddleware(httpMetrics))
	engine.Use(apiMetricsMiddleware(apiMetrics))
	engine.Use(ErrorHandlingMiddleware())

	healthz := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	engine.GET("/", healthz)
	engine.GET("/health", healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return engine
}

func apiMetricsMiddleware(m *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPIRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func run(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

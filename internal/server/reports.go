package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/karsada/fleetcore/internal/authorization"
	ledgerdomain "github.com/karsada/fleetcore/internal/ledger/domain"
	"github.com/karsada/fleetcore/internal/ratelimit"
)

func (s *Server) registerReportRoutes() {
	reports := s.engine.Group("/v1/reports",
		s.requireAuth(),
		s.rateLimit(ratelimit.ClassAuthenticatedAPI),
		s.authorize(authorization.ObjectReport, authorization.ActionReportView),
	)
	reports.GET("/revenue", s.RevenueReport)
	reports.GET("/balance-sheet", s.BalanceSheet)

	reconciliation := s.engine.Group("/v1/reconciliation",
		s.requireAuth(),
		s.rateLimit(ratelimit.ClassAuthenticatedAPI),
		s.authorize(authorization.ObjectReport, authorization.ActionReconciliationRun),
	)
	reconciliation.GET("/invoices", s.ReconcileInvoices)
	reconciliation.GET("/integrity", s.IntegrityCheck)
}

func (s *Server) RevenueReport(c *gin.Context) {
	start, err := parseTimeQuery(c, "start")
	if err != nil {
		AbortWithError(c, ledgerdomain.ErrInvalidPeriod)
		return
	}
	end, err := parseTimeQuery(c, "end")
	if err != nil {
		AbortWithError(c, ledgerdomain.ErrInvalidPeriod)
		return
	}

	report, err := s.ledgerSvc.RevenueReport(c.Request.Context(), start, end)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, report)
}

func (s *Server) BalanceSheet(c *gin.Context) {
	asOf, err := parseTimeQuery(c, "asOf")
	if err != nil {
		AbortWithError(c, ledgerdomain.ErrInvalidPeriod)
		return
	}

	sheet, err := s.ledgerSvc.BalanceSheet(c.Request.Context(), asOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, sheet)
}

func (s *Server) ReconcileInvoices(c *gin.Context) {
	report, err := s.ledgerSvc.ReconcileInvoices(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, report)
}

func (s *Server) IntegrityCheck(c *gin.Context) {
	report, err := s.ledgerSvc.CheckIntegrity(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, report)
}

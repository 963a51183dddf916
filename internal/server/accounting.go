package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/karsada/fleetcore/internal/authorization"
	ledgerdomain "github.com/karsada/fleetcore/internal/ledger/domain"
	"github.com/karsada/fleetcore/internal/ratelimit"
)

func (s *Server) registerAccountingRoutes() {
	accounting := s.engine.Group("/v1/accounting",
		s.requireAuth(),
		s.rateLimit(ratelimit.ClassAuthenticatedAPI),
	)

	accounts := accounting.Group("/accounts", s.authorize(authorization.ObjectAccount, authorization.ActionAccountView))
	accounts.GET("", s.ListAccounts)
	accounts.GET("/:code/balance", s.AccountBalance)

	invoices := accounting.Group("/invoices")
	invoices.GET("", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
	invoices.POST("", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceCreate), s.CreateInvoice)
	invoices.GET("/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoice)
	invoices.GET("/:id/pdf", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.InvoicePDF)
	invoices.POST("/:id/issue", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceIssue), s.IssueInvoice)
	invoices.POST("/:id/cancel", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceCancel), s.CancelInvoice)
	invoices.POST("/:id/pay", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoicePay), s.idempotent(), s.PayInvoice)

	methods := accounting.Group("/payment-methods")
	methods.GET("", s.authorize(authorization.ObjectPaymentMethod, authorization.ActionPaymentMethodView), s.ListPaymentMethods)
	methods.POST("", s.authorize(authorization.ObjectPaymentMethod, authorization.ActionPaymentMethodManage), s.CreatePaymentMethod)
}

func (s *Server) ListAccounts(c *gin.Context) {
	var req ledgerdomain.ListAccountsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}

	accounts, err := s.ledgerSvc.ListAccounts(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{"accounts": accounts})
}

func (s *Server) AccountBalance(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))

	asOf, err := parseTimeQuery(c, "asOf")
	if err != nil {
		AbortWithError(c, ledgerdomain.ErrInvalidPeriod)
		return
	}

	balance, err := s.ledgerSvc.BalanceOf(c.Request.Context(), code, asOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, balance)
}

// parseTimeQuery reads an optional time query parameter, accepting
// RFC 3339 or a bare date. Absent means the zero time, which services
// default to now.
func parseTimeQuery(c *gin.Context, name string) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

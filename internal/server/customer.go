package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/karsada/fleetcore/internal/authorization"
	customerdomain "github.com/karsada/fleetcore/internal/customer/domain"
	"github.com/karsada/fleetcore/internal/ratelimit"
)

func (s *Server) registerCustomerRoutes() {
	customers := s.engine.Group("/v1/customers",
		s.requireAuth(),
		s.rateLimit(ratelimit.ClassAuthenticatedAPI),
	)

	customers.GET("", s.authorize(authorization.ObjectCustomer, authorization.ActionCustomerView), s.ListCustomers)
	customers.POST("", s.authorize(authorization.ObjectCustomer, authorization.ActionCustomerCreate), s.CreateCustomer)
	customers.GET("/:id", s.authorize(authorization.ObjectCustomer, authorization.ActionCustomerView), s.GetCustomer)
	customers.PATCH("/:id", s.authorize(authorization.ObjectCustomer, authorization.ActionCustomerUpdate), s.UpdateCustomer)
}

func (s *Server) ListCustomers(c *gin.Context) {
	var req customerdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}

	resp, err := s.customerSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) CreateCustomer(c *gin.Context) {
	var req customerdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}

	customer, err := s.customerSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, customer)
}

func (s *Server) GetCustomer(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	customer, err := s.customerSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, customer)
}

func (s *Server) UpdateCustomer(c *gin.Context) {
	var req customerdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	customer, err := s.customerSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, customer)
}
